package product

import (
	"context"
	"errors"
	"time"
)

// ErrNoPending is returned by PendingQueue.FetchOldestUnconsumed when the
// queue holds no unconsumed messages.
var ErrNoPending = errors.New("no pending messages")

// PendingQueue exposes the capture collaborator's message backlog. The
// pipeline only reads the oldest unconsumed message and retires it by
// consuming or deleting it.
type PendingQueue interface {
	FetchOldestUnconsumed(ctx context.Context) (RawMessage, error)
	MarkConsumed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Extractor turns free text into a candidate record via the external
// extraction service. Any transport, status, or parse problem is an error;
// the candidate it returns may still fail validation.
type Extractor interface {
	Extract(ctx context.Context, text string) (CandidateRecord, error)
}

// RecordStore persists deduplicated records. TryInsert must treat the
// existence check and the insert as one logical operation: a uniqueness
// race lost to a concurrent writer reports ResultDuplicate, never an
// error. On ResultInserted the store-assigned record ID is returned.
type RecordStore interface {
	TryInsert(ctx context.Context, rec CandidateRecord, fingerprint string) (InsertResult, string, error)
}

// Publisher pushes stored-record events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces message IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
