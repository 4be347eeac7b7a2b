package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/dedup"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/fileutil"
)

/*
Store
  - Owns every discovered product and the dedup index over them
  - New products are appended to the JSONL journal, one line each
  - Status transitions rewrite the whole file atomically
  - Merges and enrichment mark the store dirty; Flush persists them
  - Replay on load is last-line-wins per key; malformed lines are skipped
*/
type Store struct {
	mu           sync.RWMutex
	path         string
	products     map[string]*product.Product
	order        []string
	index        *dedup.Index
	indexCache   map[string]string
	// journal fingerprint the cache was taken at
	indexFingerprint string
	indexRebuilt     bool
	dirty        bool
	skipped      int
	metadataSink metadata.MetadataSink
	now          func() time.Time
}

// Open loads the journal at path. A missing file is an empty store.
func Open(path string, metadataSink metadata.MetadataSink, opts ...Option) (*Store, error) {
	s := &Store{
		path:         path,
		products:     make(map[string]*product.Product),
		index:        dedup.NewIndex(),
		metadataSink: metadataSink,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	current := fingerprint(path)
	if err := s.load(); err != nil {
		return nil, err
	}
	if s.indexFingerprint != "" && s.indexFingerprint == current {
		s.indexRebuilt = s.index.Restore(s.indexCache, s.entries())
	} else {
		s.index.Rebuild(s.entries())
		s.indexRebuilt = true
	}
	s.indexCache, s.indexFingerprint = nil, ""
	return s, nil
}

// fingerprint identifies one version of the journal by size and
// modification time. A missing file has none.
func fingerprint(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("v%d:%d:%d", dedup.KeyVersion, info.Size(), info.ModTime().UnixNano())
}

// SetClock replaces the time source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return s.fail("Open", &StoreError{Message: err.Error(), Cause: ErrCauseReadFailure, Path: s.path})
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			s.replay(bytes.TrimSpace(line), lineNo)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return s.fail("Open", &StoreError{Message: readErr.Error(), Cause: ErrCauseReadFailure, Path: s.path})
		}
	}
	return nil
}

func (s *Store) replay(line []byte, lineNo int) {
	if len(line) == 0 {
		return
	}
	var p product.Product
	if err := json.Unmarshal(line, &p); err != nil || p.Key() == "" {
		reason := "missing id and name"
		if err != nil {
			reason = err.Error()
		}
		s.skipped++
		s.metadataSink.RecordError(
			time.Now(),
			"store",
			"Store.Open",
			metadata.CauseContentInvalid,
			fmt.Sprintf("skipping malformed line %d: %s", lineNo, reason),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrWritePath, s.path)},
		)
		return
	}
	if p.SchemaVersion < product.CurrentSchemaVersion {
		s.dirty = true
	}
	p.Migrate()
	key := p.Key()
	if _, exists := s.products[key]; !exists {
		s.order = append(s.order, key)
	} else {
		// A key seen twice means the journal carries superseded lines.
		s.dirty = true
	}
	s.products[key] = &p
}

func (s *Store) entries() []dedup.Entry {
	out := make([]dedup.Entry, 0, len(s.order))
	for _, key := range s.order {
		p := s.products[key]
		ids := make(map[string]string, len(p.SourceIDs))
		for src, id := range p.SourceIDs {
			ids[string(src)] = id
		}
		out = append(out, dedup.Entry{Key: key, HomepageURL: p.HomepageURL, SourceIDs: ids})
	}
	return out
}

// IndexRebuilt reports whether Open had to rebuild the URL index.
func (s *Store) IndexRebuilt() bool {
	return s.indexRebuilt
}

// Skipped is the number of malformed journal lines ignored by Open.
func (s *Store) Skipped() int {
	return s.skipped
}

// Add registers a newly observed product.
//
//   - same normalized homepage as another product: merge into it
//   - same storage key or source id as an existing product: fill its empty fields
//   - otherwise: insert and append to the journal
func (s *Store) Add(incoming *product.Product) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := incoming.Clone()
	b.Migrate()
	key := b.Key()
	if key == "" {
		return AddResult{}, &StoreError{Message: "product has neither id nor name", Cause: ErrCauseInvalidEntity}
	}

	if owner, ok := s.index.Lookup(b.HomepageURL); ok {
		a := s.products[owner]
		if owner == key || a.SourceIDs[b.Source] == b.ID {
			s.fillEmpty(a, b)
			return AddResult{Outcome: DuplicateRejected, Key: owner}, nil
		}
		cross := s.merge(a, b)
		return AddResult{Outcome: Merged, Key: owner, CrossSource: cross}, nil
	}

	if a, ok := s.products[key]; ok {
		s.fillEmpty(a, b)
		return AddResult{Outcome: DuplicateRejected, Key: key}, nil
	}
	if owner, ok := s.index.LookupSourceID(string(b.Source), b.ID); ok {
		s.fillEmpty(s.products[owner], b)
		return AddResult{Outcome: DuplicateRejected, Key: owner}, nil
	}

	now := s.now()
	if b.DiscoveredAt == nil {
		b.DiscoveredAt = &now
	}
	if b.HasHomepage() && b.HomepageCheckedAt == nil {
		b.HomepageCheckedAt = &now
	}
	line, err := json.Marshal(b)
	if err != nil {
		return AddResult{}, s.fail("Add", &StoreError{Message: err.Error(), Cause: ErrCauseEncodeFailure})
	}
	if err := fileutil.AppendLine(s.path, line); err != nil {
		return AddResult{}, s.fail("Add", &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailure, Retryable: true, Path: s.path})
	}

	s.products[key] = b
	s.order = append(s.order, key)
	s.indexProduct(b)
	return AddResult{Outcome: Inserted, Key: key}, nil
}

func (s *Store) indexProduct(p *product.Product) {
	key := p.Key()
	s.index.Put(p.HomepageURL, key)
	for src, id := range p.SourceIDs {
		s.index.PutSourceID(string(src), id, key)
	}
}

// SetHomepage records a resolved homepage for key. When another product
// already owns the URL, key is merged into that product and removed.
func (s *Store) SetHomepage(key, homepageURL string, origin product.Origin) (HomepageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[key]
	if !ok {
		return HomepageResult{}, &StoreError{Message: key, Cause: ErrCauseNotFound}
	}
	now := s.now()
	p.HomepageCheckedAt = &now

	owner, taken := s.index.Lookup(homepageURL)
	if taken && owner != key {
		a := s.products[owner]
		b := p.Clone()
		b.HomepageURL = homepageURL
		b.HomepageOrigin = origin
		cross := s.merge(a, b)
		s.delete(key)
		s.dirty = true
		return HomepageResult{Key: owner, MergedInto: true, CrossSource: cross}, nil
	}

	if p.HomepageURL != "" {
		s.index.Remove(p.HomepageURL, key)
	}
	p.HomepageURL = homepageURL
	p.HomepageOrigin = origin
	p.HomepageDiscovered = homepageURL != ""
	s.index.Put(homepageURL, key)
	s.dirty = true
	return HomepageResult{Key: key}, nil
}

// MarkHomepageChecked records that resolution ran for key and found nothing.
func (s *Store) MarkHomepageChecked(key string) error {
	return s.update(key, false, func(p *product.Product, now time.Time) {
		p.HomepageCheckedAt = &now
	})
}

func (s *Store) delete(key string) {
	delete(s.products, key)
	s.index.RemoveKey(key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// MarkCompleted marks a successful extraction and rewrites the journal.
func (s *Store) MarkCompleted(key string) error {
	return s.update(key, true, func(p *product.Product, now time.Time) {
		p.ExtractionAttempts++
		p.LastAttemptAt = &now
		p.MarkCompleted(now)
	})
}

// MarkFailed marks a terminal extraction failure and rewrites the journal.
func (s *Store) MarkFailed(key, reason string) error {
	return s.update(key, true, func(p *product.Product, now time.Time) {
		p.RecordAttempt(now, reason)
		p.MarkFailed(now, reason)
	})
}

// RecordAttempt counts a retryable failure and leaves the product pending.
// The change is flushed with the next checkpoint.
func (s *Store) RecordAttempt(key, reason string) error {
	return s.update(key, false, func(p *product.Product, now time.Time) {
		p.RecordAttempt(now, reason)
	})
}

func (s *Store) update(key string, rewrite bool, fn func(p *product.Product, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[key]
	if !ok {
		return &StoreError{Message: key, Cause: ErrCauseNotFound}
	}
	fn(p, s.now())
	s.dirty = true
	if rewrite {
		return s.rewriteLocked()
	}
	return nil
}

// ResetFailed returns every failed product to pending.
func (s *Store) ResetFailed() (int, error) {
	return s.resetWhere(func(p *product.Product) bool { return p.Status == product.StatusFailed }, (*product.Product).Reset)
}

// ResetAll returns every product to pending, completed ones included.
func (s *Store) ResetAll() (int, error) {
	return s.resetWhere(func(p *product.Product) bool { return true }, (*product.Product).ResetAll)
}

func (s *Store) resetWhere(match func(*product.Product) bool, reset func(*product.Product)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, key := range s.order {
		p := s.products[key]
		if match(p) {
			reset(p)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	s.dirty = true
	return count, s.rewriteLocked()
}

// Flush rewrites the journal if anything changed since the last rewrite.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.rewriteLocked()
}

// Dirty reports whether there are unflushed changes.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// does NOT take lock; caller must hold s.mu
func (s *Store) rewriteLocked() error {
	var buf bytes.Buffer
	for _, key := range s.order {
		line, err := json.Marshal(s.products[key])
		if err != nil {
			return s.fail("Rewrite", &StoreError{Message: err.Error(), Cause: ErrCauseEncodeFailure})
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := fileutil.WriteFileAtomic(s.path, buf.Bytes()); err != nil {
		return s.fail("Rewrite", &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailure, Retryable: true, Path: s.path})
	}
	s.dirty = false
	s.metadataSink.RecordArtifact(metadata.ArtifactTargets, s.path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrWritePath, s.path),
	})
	return nil
}

func (s *Store) fail(action string, err *StoreError) error {
	s.metadataSink.RecordError(
		time.Now(),
		"store",
		"Store."+action,
		mapStoreErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrWritePath, err.Path)},
	)
	return err
}

// Get returns a copy of the product stored under key.
func (s *Store) Get(key string) (*product.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[key]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// LookupURL returns a copy of the product owning rawURL's normalized form.
func (s *Store) LookupURL(rawURL string) (*product.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.index.Lookup(rawURL)
	if !ok {
		return nil, false
	}
	return s.products[key].Clone(), true
}

func (s *Store) IsKnownURL(rawURL string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.IsKnown(rawURL)
}

// List returns copies of the products matching filter in journal order.
// A limit of zero or less means no limit.
func (s *Store) List(filter func(*product.Product) bool, limit int) []*product.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*product.Product
	for _, key := range s.order {
		p := s.products[key]
		if filter != nil && !filter(p) {
			continue
		}
		out = append(out, p.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (s *Store) NeedingHomepage() []*product.Product {
	return s.List((*product.Product).NeedsHomepage, 0)
}

func (s *Store) NeedingExtraction(limit int) []*product.Product {
	return s.List((*product.Product).NeedsExtraction, limit)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.products), PerSource: map[product.Source]int{}}
	for _, p := range s.products {
		switch p.Status {
		case product.StatusPending:
			st.Pending++
		case product.StatusCompleted:
			st.Completed++
		case product.StatusFailed:
			st.Failed++
		}
		if !p.HasHomepage() {
			st.NoHomepage++
		}
		st.PerSource[p.Source]++
	}
	return st
}

// IndexSnapshot returns the URL index for the collection state cache and
// the journal fingerprint it matches. Flush first, or the fingerprint
// describes a journal the index has already moved past.
func (s *Store) IndexSnapshot() (map[string]string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Snapshot(), fingerprint(s.path)
}
