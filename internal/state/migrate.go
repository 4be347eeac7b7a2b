package state

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohmanhakim/saas-intel/internal/product"
)

// v1Product is one entry of the products map of a version 1 document.
type v1Product struct {
	Name               string `json:"name"`
	HomepageURL        string `json:"homepage_url"`
	SaaSHubURL         string `json:"saashub_url"`
	SaaSHubID          string `json:"saashub_id"`
	SeedQuery          string `json:"seed_query"`
	DiscoveredAt       string `json:"discovered_at"`
	HomepageDiscovered bool   `json:"homepage_discovered"`
	Extracted          bool   `json:"extracted"`
	ExtractedAt        string `json:"extracted_at"`
	ExtractionError    string `json:"extraction_error"`
	ExtractionAttempts int    `json:"extraction_attempts"`
	LastAttemptAt      string `json:"last_attempt_at"`
}

// v1State is the flat layout written before schema versioning.
type v1State struct {
	RunID                  string               `json:"run_id"`
	StartedAt              string               `json:"started_at"`
	ProcessedSeeds         []string             `json:"processed_seeds"`
	Products               map[string]v1Product `json:"products"`
	ConsecutiveLLMFailures int                  `json:"consecutive_llm_failures"`
	LastLLMError           string               `json:"last_llm_error"`
	Halted                 bool                 `json:"halted"`
	HaltReason             string               `json:"halt_reason"`
	TotalDiscovered        int                  `json:"total_discovered"`
	TotalExtracted         int                  `json:"total_extracted"`
	TotalFailed            int                  `json:"total_failed"`
}

func migrateV1(data []byte, now time.Time) (*State, error) {
	var old v1State
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}

	st := &State{
		SchemaVersion:                CurrentSchemaVersion,
		RunID:                        old.RunID,
		StartedAt:                    parseTime(old.StartedAt, now),
		UpdatedAt:                    now,
		ConsecutiveRateLimitFailures: old.ConsecutiveLLMFailures,
		LastError:                    old.LastLLMError,
		Halted:                       old.Halted,
		HaltReason:                   old.HaltReason,
		Totals: Totals{
			Discovered: old.TotalDiscovered,
			Extracted:  old.TotalExtracted,
			Failed:     old.TotalFailed,
		},
	}
	if st.RunID == "" {
		st.RunID = uuid.Must(uuid.NewV7()).String()
	}
	// Version 1 only ever queried SaaSHub, with bare seed names.
	for _, seed := range old.ProcessedSeeds {
		if !strings.Contains(seed, ":") {
			seed = SeedKey(product.SourceSaaSHub, seed)
		}
		st.ProcessedSeeds = append(st.ProcessedSeeds, seed)
	}
	for key, p := range old.Products {
		st.legacy = append(st.legacy, fromV1(key, p))
	}
	st.normalize()
	return st, nil
}

func fromV1(key string, old v1Product) *product.Product {
	p := &product.Product{
		ID:                 old.SaaSHubID,
		Name:               old.Name,
		HomepageURL:        old.HomepageURL,
		SourceURL:          old.SaaSHubURL,
		SeedQuery:          old.SeedQuery,
		Source:             product.SourceSaaSHub,
		Extracted:          old.Extracted,
		ExtractionError:    old.ExtractionError,
		ExtractionAttempts: old.ExtractionAttempts,
		DiscoveredAt:       parseTimePtr(old.DiscoveredAt),
		ExtractedAt:        parseTimePtr(old.ExtractedAt),
		LastAttemptAt:      parseTimePtr(old.LastAttemptAt),
	}
	if p.ID == "" {
		p.ID = key
	}
	if old.HomepageURL != "" {
		p.HomepageOrigin = product.OriginResolved
	}
	p.Migrate()
	return p
}

func parseTime(raw string, fallback time.Time) time.Time {
	if t := parseTimePtr(raw); t != nil {
		return *t
	}
	return fallback
}

func parseTimePtr(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	// Python isoformat() omits the offset on naive timestamps.
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
