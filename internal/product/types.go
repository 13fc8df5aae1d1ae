// Package product defines core types shared across subsystems.
package product

import "time"

// RawMessage is one captured free-text entry awaiting extraction. The
// pipeline never mutates anything beyond the consumed flag and never
// re-reads a message once it is consumed or deleted.
type RawMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Images     []string  `json:"images,omitempty"`
	Image      string    `json:"image_base64,omitempty"`
	Consumed   bool      `json:"consumed"`
	CapturedAt time.Time `json:"captured_at"`
}

// CandidateRecord is the structured record proposed by the extractor for
// one message. Numeric fields are pointers so that absent, null, or
// non-numeric extractor output stays representable and is rejected by
// Validate instead of a decode error.
type CandidateRecord struct {
	Name            string   `json:"name"`
	Category        string   `json:"category,omitempty"`
	Price           *float64 `json:"price"`
	DiscountedPrice *float64 `json:"discounted_price"`
	DiscountPercent *float64 `json:"discount_percent"`
	Username        string   `json:"username,omitempty"`
	IsFree          bool     `json:"is_free"`
	Image           string   `json:"image_base64,omitempty"`
}

// StoredRecord is a validated, deduplicated candidate persisted for
// downstream querying.
type StoredRecord struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	CandidateRecord
}

// InsertResult reports how the record store handled an insert attempt.
type InsertResult int

// Insert outcomes. A duplicate is an expected result, not an error: the
// source message is still consumed.
const (
	ResultInserted InsertResult = iota
	ResultDuplicate
)

// Outcome labels one pipeline iteration for logging and metrics.
type Outcome string

// Iteration outcomes. Only OutcomeStoreFailed leaves the source message
// unconsumed for a later retry.
const (
	OutcomeFilteredOut      Outcome = "filtered_out"
	OutcomeExtractionFailed Outcome = "extraction_failed"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeStored           Outcome = "stored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeStoreFailed      Outcome = "store_failed"
)
