package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/extraction"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
	"github.com/rohmanhakim/saas-intel/pkg/fileutil"
	"github.com/rohmanhakim/saas-intel/pkg/hashutil"
	"github.com/rohmanhakim/saas-intel/pkg/urlutil"
)

/*
Responsibilities
- Append collected products to the output JSONL file
- Derive a stable record id from the normalized homepage URL
- Never write the same record id twice, across runs

Output Characteristics
- One JSON object per line, append-only
- A resumed run reloads existing ids before writing
- Unparseable lines are left in place and ignored
*/

// RecordIDLength is the number of hex characters kept from the digest.
const RecordIDLength = 16

type Sink interface {
	Write(record extraction.CollectedProduct) (WriteResult, failure.ClassifiedError)
}

type JSONLSink struct {
	metadataSink metadata.MetadataSink
	path         string

	mu      sync.Mutex
	written map[string]struct{}
}

// OpenJSONLSink loads the ids already present in path. A missing file is
// an empty sink.
func OpenJSONLSink(path string, metadataSink metadata.MetadataSink) (*JSONLSink, failure.ClassifiedError) {
	s := &JSONLSink{
		metadataSink: metadataSink,
		path:         path,
		written:      map[string]struct{}{},
	}
	if err := s.load(); err != nil {
		s.record("JSONLSink.Open", err)
		return nil, err
	}
	return s, nil
}

// RecordID is the output identity of a homepage.
func RecordID(homepageURL string) string {
	key := urlutil.Normalize(homepageURL)
	if key == "" {
		return ""
	}
	return hashutil.ShortID(key, RecordIDLength)
}

func (s *JSONLSink) load() *StorageError {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseReadFailure, Path: s.path}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var row struct {
			RecordID    string `json:"record_id"`
			HomepageURL string `json:"homepage_url"`
		}
		if json.Unmarshal(scanner.Bytes(), &row) != nil {
			continue
		}
		id := row.RecordID
		if id == "" {
			id = RecordID(row.HomepageURL)
		}
		if id != "" {
			s.written[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseReadFailure, Path: s.path}
	}
	return nil
}

func (s *JSONLSink) Path() string {
	return s.path
}

// Has reports whether a row for homepageURL is already on disk.
func (s *JSONLSink) Has(homepageURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.written[RecordID(homepageURL)]
	return ok
}

func (s *JSONLSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func (s *JSONLSink) Write(record extraction.CollectedProduct) (WriteResult, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := RecordID(record.HomepageURL)
	if id == "" {
		err := &StorageError{Message: record.ProductID, Cause: ErrCauseMissingURL, Path: s.path}
		s.record("JSONLSink.Write", err)
		return WriteResult{}, err
	}
	if _, ok := s.written[id]; ok {
		return NewWriteResult(id, s.path, true), nil
	}

	record.RecordID = id
	line, err := json.Marshal(record)
	if err != nil {
		storageErr := &StorageError{Message: err.Error(), Cause: ErrCauseEncodeFailure, Path: s.path}
		s.record("JSONLSink.Write", storageErr)
		return WriteResult{}, storageErr
	}
	if err := fileutil.AppendLine(s.path, line); err != nil {
		storageErr := &StorageError{Message: err.Error(), Cause: ErrCauseWriteFailure, Path: s.path, Retryable: true}
		if errors.Is(err, syscall.ENOSPC) {
			storageErr.Cause = ErrCauseDiskFull
		}
		s.record("JSONLSink.Write", storageErr)
		return WriteResult{}, storageErr
	}
	s.written[id] = struct{}{}

	s.metadataSink.RecordArtifact(
		metadata.ArtifactOutput,
		s.path,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, s.path),
			metadata.NewAttr(metadata.AttrURL, record.HomepageURL),
			metadata.NewAttr(metadata.AttrTargetID, record.ProductID),
		},
	)
	return NewWriteResult(id, s.path, false), nil
}

func (s *JSONLSink) record(action string, err *StorageError) {
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		action,
		mapStorageErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, err.Path),
		},
	)
}
