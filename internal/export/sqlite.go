// Package export copies the target store and run summaries into a SQLite
// database for ad hoc querying.
package export

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/state"
)

// SQLite is an export target. Every export is an upsert, so exporting the
// same store twice leaves one row per product.
type SQLite struct {
	db           *sql.DB
	path         string
	metadataSink metadata.MetadataSink
}

// Target is one exported row, as read back by Target.
type Target struct {
	Key                string
	Name               string
	Source             string
	HomepageURL        string
	HomepageOrigin     string
	SourceURL          string
	Status             string
	FailureReason      string
	ExtractionAttempts int
	Votes              sql.NullInt64
	Topics             []string
}

func OpenSQLite(path string, metadataSink metadata.MetadataSink) (*SQLite, error) {
	s := &SQLite{path: path, metadataSink: metadataSink}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, s.fail("OpenSQLite", &ExportError{Message: err.Error(), Cause: ErrCauseOpenFailed, Path: path})
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, s.fail("OpenSQLite", &ExportError{Message: err.Error(), Cause: ErrCauseOpenFailed, Path: path})
	}
	s.db = db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, s.fail("OpenSQLite", &ExportError{Message: err.Error(), Cause: ErrCauseSchemaFailed, Path: path})
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS targets (
		product_key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT NOT NULL,
		homepage_url TEXT,
		homepage_origin TEXT,
		source_url TEXT,
		status TEXT NOT NULL,
		failure_reason TEXT,
		extraction_attempts INTEGER DEFAULT 0,
		votes INTEGER,
		topics TEXT,
		discovered_at TIMESTAMP,
		completed_at TIMESTAMP,
		exported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		halted INTEGER DEFAULT 0,
		halt_reason TEXT,
		seeds_processed INTEGER DEFAULT 0,
		discovered INTEGER DEFAULT 0,
		resolved INTEGER DEFAULT 0,
		extracted INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		merged INTEGER DEFAULT 0,
		started_at TIMESTAMP,
		updated_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_targets_status ON targets(status);
	CREATE INDEX IF NOT EXISTS idx_targets_source ON targets(source);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ExportTargets upserts every product in a single transaction and returns
// the number of rows written.
func (s *SQLite) ExportTargets(products []*product.Product, exportedAt time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, s.fail("ExportTargets", &ExportError{Message: err.Error(), Cause: ErrCauseWriteFailed, Path: s.path})
	}
	stmt, err := tx.Prepare(`
		INSERT INTO targets (
			product_key, name, source, homepage_url, homepage_origin, source_url,
			status, failure_reason, extraction_attempts, votes, topics,
			discovered_at, completed_at, exported_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_key) DO UPDATE SET
			name = EXCLUDED.name,
			source = EXCLUDED.source,
			homepage_url = EXCLUDED.homepage_url,
			homepage_origin = EXCLUDED.homepage_origin,
			source_url = EXCLUDED.source_url,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			extraction_attempts = EXCLUDED.extraction_attempts,
			votes = COALESCE(EXCLUDED.votes, targets.votes),
			topics = EXCLUDED.topics,
			discovered_at = COALESCE(targets.discovered_at, EXCLUDED.discovered_at),
			completed_at = EXCLUDED.completed_at,
			exported_at = EXCLUDED.exported_at
	`)
	if err != nil {
		tx.Rollback()
		return 0, s.fail("ExportTargets", &ExportError{Message: err.Error(), Cause: ErrCauseWriteFailed, Path: s.path})
	}
	defer stmt.Close()

	for _, p := range products {
		topics, _ := json.Marshal(p.Topics)
		var votes sql.NullInt64
		if p.Votes != nil {
			votes = sql.NullInt64{Int64: int64(*p.Votes), Valid: true}
		}
		_, err := stmt.Exec(
			p.Key(), p.Name, string(p.Source), p.HomepageURL, string(p.HomepageOrigin), p.SourceURL,
			string(p.Status), p.FailureReason, p.ExtractionAttempts, votes, string(topics),
			nullTime(p.DiscoveredAt), nullTime(p.CompletedAt), exportedAt.UTC(),
		)
		if err != nil {
			tx.Rollback()
			return 0, s.fail("ExportTargets", &ExportError{Message: err.Error(), Cause: ErrCauseWriteFailed, Path: s.path})
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, s.fail("ExportTargets", &ExportError{Message: err.Error(), Cause: ErrCauseWriteFailed, Path: s.path})
	}
	s.metadataSink.RecordArtifact(metadata.ArtifactExport, s.path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrMessage, "targets exported"),
	})
	return len(products), nil
}

// ExportRun upserts the summary row of one run.
func (s *SQLite) ExportRun(summary state.Summary) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (
			run_id, phase, halted, halt_reason, seeds_processed,
			discovered, resolved, extracted, failed, merged, started_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			halted = EXCLUDED.halted,
			halt_reason = EXCLUDED.halt_reason,
			seeds_processed = EXCLUDED.seeds_processed,
			discovered = EXCLUDED.discovered,
			resolved = EXCLUDED.resolved,
			extracted = EXCLUDED.extracted,
			failed = EXCLUDED.failed,
			merged = EXCLUDED.merged,
			updated_at = EXCLUDED.updated_at
	`,
		summary.RunID, string(summary.Phase), summary.Halted, summary.HaltReason, summary.SeedsProcessed,
		summary.Totals.Discovered, summary.Totals.Resolved, summary.Totals.Extracted,
		summary.Totals.Failed, summary.Totals.Merged,
		summary.StartedAt.UTC(), summary.UpdatedAt.UTC(),
	)
	if err != nil {
		return s.fail("ExportRun", &ExportError{Message: err.Error(), Cause: ErrCauseWriteFailed, Path: s.path})
	}
	return nil
}

// Target reads one exported row back; nil when the key is unknown.
func (s *SQLite) Target(key string) (*Target, error) {
	var (
		t      Target
		topics sql.NullString
		reason sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT product_key, name, source, homepage_url, homepage_origin, source_url,
			status, failure_reason, extraction_attempts, votes, topics
		FROM targets
		WHERE product_key = ?
	`, key).Scan(&t.Key, &t.Name, &t.Source, &t.HomepageURL, &t.HomepageOrigin, &t.SourceURL,
		&t.Status, &reason, &t.ExtractionAttempts, &t.Votes, &topics)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail("Target", &ExportError{Message: err.Error(), Cause: ErrCauseReadFailed, Path: s.path})
	}
	t.FailureReason = reason.String
	if topics.Valid {
		_ = json.Unmarshal([]byte(topics.String), &t.Topics)
	}
	return &t, nil
}

// Count returns the number of rows in table, which must be "targets" or
// "runs".
func (s *SQLite) Count(table string) (int, error) {
	var query string
	switch table {
	case "targets":
		query = "SELECT COUNT(*) FROM targets"
	case "runs":
		query = "SELECT COUNT(*) FROM runs"
	default:
		return 0, &ExportError{Message: "unknown table " + table, Cause: ErrCauseReadFailed, Path: s.path}
	}
	var n int
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, s.fail("Count", &ExportError{Message: err.Error(), Cause: ErrCauseReadFailed, Path: s.path})
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) fail(action string, err *ExportError) error {
	if s.metadataSink != nil {
		s.metadataSink.RecordError(
			time.Now(),
			"export",
			action,
			mapExportErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrWritePath, err.Path)},
		)
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
