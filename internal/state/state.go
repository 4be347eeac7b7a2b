package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/fileutil"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
)

const CurrentSchemaVersion = 2

type Phase string

const (
	PhaseDiscovery          Phase = "discovery"
	PhaseHomepageResolution Phase = "homepage_resolution"
	PhaseExtraction         Phase = "extraction"
	PhaseDone               Phase = "done"
	PhaseHalted             Phase = "halted"
)

type SourceTotals struct {
	Discovered int `json:"discovered"`
	Merged     int `json:"merged"`
	Extracted  int `json:"extracted"`
	Failed     int `json:"failed"`
}

type Totals struct {
	Discovered int                     `json:"discovered"`
	Resolved   int                     `json:"resolved"`
	Extracted  int                     `json:"extracted"`
	Failed     int                     `json:"failed"`
	Merged     int                     `json:"merged"`
	PerSource  map[string]SourceTotals `json:"per_source"`
}

/*
State is the process-wide, persisted record of a collection run.

  - Only the orchestrator mutates it
  - The limiter's per-source states are serialised inside it
  - The URL index is a cache; the target store journal is the source of truth
  - It is never deleted automatically, only by an explicit operator reset
*/
type State struct {
	mu sync.Mutex

	SchemaVersion                int                      `json:"schema_version"`
	RunID                        string                   `json:"run_id"`
	StartedAt                    time.Time                `json:"started_at"`
	UpdatedAt                    time.Time                `json:"updated_at"`
	ProcessedSeeds               []string                 `json:"processed_seeds"`
	CurrentPhase                 Phase                    `json:"current_phase"`
	Halted                       bool                     `json:"halted"`
	HaltReason                   string                   `json:"halt_reason,omitempty"`
	ConsecutiveRateLimitFailures int                      `json:"consecutive_rate_limit_failures"`
	LastError                    string                   `json:"last_error,omitempty"`
	Totals                       Totals                   `json:"totals"`
	RateLimits                   map[string]limiter.State `json:"rate_limits"`
	URLIndex                     map[string]string        `json:"url_index"`
	URLIndexFingerprint          string                   `json:"url_index_fingerprint,omitempty"`
	TargetsFile                  string                   `json:"targets_file,omitempty"`

	processed map[string]struct{}
	legacy    []*product.Product
}

// New starts a fresh state with a time-ordered run id.
func New(now time.Time) *State {
	s := &State{
		SchemaVersion: CurrentSchemaVersion,
		RunID:         uuid.Must(uuid.NewV7()).String(),
		StartedAt:     now,
		UpdatedAt:     now,
		CurrentPhase:  PhaseDiscovery,
	}
	s.normalize()
	return s
}

func (s *State) normalize() {
	if s.ProcessedSeeds == nil {
		s.ProcessedSeeds = []string{}
	}
	if s.RateLimits == nil {
		s.RateLimits = map[string]limiter.State{}
	}
	if s.URLIndex == nil {
		s.URLIndex = map[string]string{}
	}
	if s.Totals.PerSource == nil {
		s.Totals.PerSource = map[string]SourceTotals{}
	}
	if s.CurrentPhase == "" {
		s.CurrentPhase = PhaseDiscovery
	}
	if s.Halted {
		s.CurrentPhase = PhaseHalted
	}
	s.processed = make(map[string]struct{}, len(s.ProcessedSeeds))
	for _, seed := range s.ProcessedSeeds {
		s.processed[seed] = struct{}{}
	}
}

// Load reads the state at path. A missing file yields a fresh state and
// existed=false. Older documents are migrated; unknown fields are ignored.
func Load(path string, now time.Time) (st *State, existed bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(now), false, nil
	}
	if err != nil {
		return nil, false, &StateError{Message: err.Error(), Cause: ErrCauseReadFailure, Path: path}
	}

	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, true, &StateError{Message: err.Error(), Cause: ErrCauseDecodeFailure, Path: path}
	}

	if probe.SchemaVersion < 2 {
		st, err := migrateV1(data, now)
		if err != nil {
			return nil, true, &StateError{Message: err.Error(), Cause: ErrCauseDecodeFailure, Path: path}
		}
		return st, true, nil
	}

	st = &State{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, true, &StateError{Message: err.Error(), Cause: ErrCauseDecodeFailure, Path: path}
	}
	if st.RunID == "" {
		st.RunID = uuid.Must(uuid.NewV7()).String()
	}
	if st.StartedAt.IsZero() {
		st.StartedAt = now
	}
	st.SchemaVersion = CurrentSchemaVersion
	st.normalize()
	return st, true, nil
}

// Save writes the state atomically. The URL index and the limiter states
// are expected to be refreshed by the caller just before.
func (s *State) Save(path string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = now
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &StateError{Message: err.Error(), Cause: ErrCauseEncodeFailure, Path: path}
	}
	if err := fileutil.WriteFileAtomic(path, data); err != nil {
		return &StateError{Message: err.Error(), Cause: ErrCauseWriteFailure, Path: path, Retryable: true}
	}
	return nil
}

// SeedKey namespaces a seed by source so "crm" on SaaSHub and the "crm"
// Product Hunt topic are tracked separately.
func SeedKey(source product.Source, seed string) string {
	return fmt.Sprintf("%s:%s", source, seed)
}

func (s *State) IsSeedProcessed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[key]
	return ok
}

func (s *State) MarkSeedProcessed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[key]; ok {
		return
	}
	s.processed[key] = struct{}{}
	s.ProcessedSeeds = append(s.ProcessedSeeds, key)
}

func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Halted {
		return
	}
	s.CurrentPhase = p
}

// Halt moves the run to the absorbing halted state.
func (s *State) Halt(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Halted = true
	s.HaltReason = reason
	s.CurrentPhase = PhaseHalted
}

// ClearHalt is the operator un-halt. The run resumes from discovery, which
// skips processed seeds, so nothing is repeated.
func (s *State) ClearHalt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Halted = false
	s.HaltReason = ""
	s.ConsecutiveRateLimitFailures = 0
	s.CurrentPhase = PhaseDiscovery
}

func (s *State) IsHalted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Halted
}

// RecordRateLimitFailure counts one rate-limited extraction and halts when
// the streak reaches threshold. It reports whether the run is now halted.
func (s *State) RecordRateLimitFailure(errMsg string, threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConsecutiveRateLimitFailures++
	s.LastError = errMsg
	if threshold > 0 && s.ConsecutiveRateLimitFailures >= threshold {
		s.Halted = true
		s.CurrentPhase = PhaseHalted
		s.HaltReason = fmt.Sprintf("Rate limit: %d consecutive failures. Last error: %s",
			s.ConsecutiveRateLimitFailures, errMsg)
		return true
	}
	return false
}

// RecordFailure notes a non-rate-limit error. The rate-limit streak is
// only reset by a success.
func (s *State) RecordFailure(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = errMsg
}

func (s *State) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConsecutiveRateLimitFailures = 0
}

func (s *State) perSource(source string, fn func(t *SourceTotals)) {
	t := s.Totals.PerSource[source]
	fn(&t)
	s.Totals.PerSource[source] = t
}

func (s *State) AddDiscovered(source product.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Totals.Discovered++
	s.perSource(string(source), func(t *SourceTotals) { t.Discovered++ })
}

// AddMerged counts one distinct merge event of source into another.
func (s *State) AddMerged(source product.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Totals.Merged++
	s.perSource(string(source), func(t *SourceTotals) { t.Merged++ })
}

func (s *State) AddResolved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Totals.Resolved++
}

func (s *State) AddExtracted(source product.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Totals.Extracted++
	s.perSource(string(source), func(t *SourceTotals) { t.Extracted++ })
}

func (s *State) AddFailed(source product.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Totals.Failed++
	s.perSource(string(source), func(t *SourceTotals) { t.Failed++ })
}

// SetRateLimit stores one source's limiter state; it is the limiter's
// pause hook target.
func (s *State) SetRateLimit(source string, st limiter.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RateLimits[source] = st
}

func (s *State) SetRateLimits(states map[string]limiter.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range states {
		s.RateLimits[k] = v
	}
}

func (s *State) RateLimitSnapshot() map[string]limiter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]limiter.State, len(s.RateLimits))
	for k, v := range s.RateLimits {
		out[k] = v
	}
	return out
}

// SetURLIndex caches the store's URL index with the journal fingerprint it
// was taken at.
func (s *State) SetURLIndex(index map[string]string, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.URLIndex = index
	s.URLIndexFingerprint = fingerprint
}

// LegacyProducts returns products embedded in a version 1 document. They
// belong in the target store and are dropped from the state once read.
func (s *State) LegacyProducts() []*product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.legacy
	s.legacy = nil
	return out
}

// Summary is the read-only view printed by the status command.
type Summary struct {
	RunID                        string    `json:"run_id"`
	StartedAt                    time.Time `json:"started_at"`
	UpdatedAt                    time.Time `json:"updated_at"`
	Phase                        Phase     `json:"current_phase"`
	SeedsProcessed               int       `json:"seeds_processed"`
	Halted                       bool      `json:"halted"`
	HaltReason                   string    `json:"halt_reason,omitempty"`
	ConsecutiveRateLimitFailures int       `json:"consecutive_rate_limit_failures"`
	Totals                       Totals    `json:"totals"`
}

func (s *State) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	per := make(map[string]SourceTotals, len(s.Totals.PerSource))
	for k, v := range s.Totals.PerSource {
		per[k] = v
	}
	totals := s.Totals
	totals.PerSource = per
	return Summary{
		RunID:                        s.RunID,
		StartedAt:                    s.StartedAt,
		UpdatedAt:                    s.UpdatedAt,
		Phase:                        s.CurrentPhase,
		SeedsProcessed:               len(s.ProcessedSeeds),
		Halted:                       s.Halted,
		HaltReason:                   s.HaltReason,
		ConsecutiveRateLimitFailures: s.ConsecutiveRateLimitFailures,
		Totals:                       totals,
	}
}
