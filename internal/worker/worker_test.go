package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/welanie/dealpipe/internal/hash/md5"
	"github.com/welanie/dealpipe/internal/metrics"
	"github.com/welanie/dealpipe/internal/product"
	publishermemory "github.com/welanie/dealpipe/internal/publisher/memory"
	queuememory "github.com/welanie/dealpipe/internal/queue/memory"
	storagememory "github.com/welanie/dealpipe/internal/storage/memory"
)

const relevantText = "Скидка 50% на куртку, цена 2000 руб, итого 1000 руб!!!"

func floatPtr(v float64) *float64 { return &v }

type fakeExtractor struct {
	candidate product.CandidateRecord
	err       error
	calls     int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (product.CandidateRecord, error) {
	f.calls++
	return f.candidate, f.err
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

// flakyStore fails the first failN insert attempts, then delegates.
type flakyStore struct {
	inner *storagememory.RecordStore
	failN int
	calls int
}

func (s *flakyStore) TryInsert(
	ctx context.Context,
	rec product.CandidateRecord,
	fingerprint string,
) (product.InsertResult, string, error) {
	s.calls++
	if s.calls <= s.failN {
		return product.ResultDuplicate, "", errors.New("connection refused")
	}
	return s.inner.TryInsert(ctx, rec, fingerprint)
}

type testHarness struct {
	queue     *queuememory.Queue
	store     *storagememory.RecordStore
	extractor *fakeExtractor
	publisher *publishermemory.Publisher
	worker    *Worker
}

func newHarness(t *testing.T, extractor *fakeExtractor, store product.RecordStore) *testHarness {
	t.Helper()
	metrics.Init()
	h := &testHarness{
		queue:     queuememory.NewQueue(),
		extractor: extractor,
		publisher: publishermemory.New(),
	}
	if store == nil {
		h.store = storagememory.NewRecordStore()
		store = h.store
	}
	h.worker = New(
		h.queue,
		product.NewFilter(0, 0, nil),
		extractor,
		store,
		h.publisher,
		md5.New(),
		&fakeClock{now: time.Unix(1700000000, 0).UTC()},
		product.NewBackoffPolicy(time.Millisecond, 2*time.Millisecond),
		Config{Topic: "stored-records", IdleInterval: time.Millisecond},
		zap.NewNop(),
	)
	return h
}

func extractedCandidate() product.CandidateRecord {
	return product.CandidateRecord{
		Name:            "Куртка",
		Category:        "clothing",
		Price:           floatPtr(2000),
		DiscountedPrice: floatPtr(1000),
		DiscountPercent: floatPtr(50),
		Username:        "shop1",
	}
}

func enqueue(t *testing.T, h *testHarness, msg product.RawMessage) {
	t.Helper()
	if msg.CapturedAt.IsZero() {
		msg.CapturedAt = time.Unix(1700000000, 0).UTC()
	}
	require.NoError(t, h.queue.Enqueue(context.Background(), msg))
}

func TestProcessMessageStoresValidCandidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, &fakeExtractor{candidate: extractedCandidate()}, nil)
	enqueue(t, h, product.RawMessage{ID: "m1", Text: relevantText})

	msg, err := h.queue.FetchOldestUnconsumed(ctx)
	require.NoError(t, err)
	outcome := h.worker.processMessage(ctx, msg)
	require.Equal(t, product.OutcomeStored, outcome)

	// The record is stored and the source message is consumed, not deleted.
	require.Equal(t, 1, h.store.Len())
	require.Equal(t, 1, h.queue.Len())
	_, err = h.queue.FetchOldestUnconsumed(ctx)
	require.ErrorIs(t, err, product.ErrNoPending)

	// A stored-record event went out.
	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "stored-records", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Куртка", payload["name"])
}

func TestProcessMessageDeletesShortTextWithoutExtraction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ext := &fakeExtractor{candidate: extractedCandidate()}
	h := newHarness(t, ext, nil)
	enqueue(t, h, product.RawMessage{ID: "m1", Text: "hi"})

	msg, err := h.queue.FetchOldestUnconsumed(ctx)
	require.NoError(t, err)
	outcome := h.worker.processMessage(ctx, msg)
	require.Equal(t, product.OutcomeFilteredOut, outcome)

	require.Zero(t, ext.calls)
	require.Zero(t, h.queue.Len())
	require.Zero(t, h.store.Len())
}

func TestProcessMessageDeletesInvalidCandidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// Extractor returned a name and price but no discount fields.
	partial := product.CandidateRecord{Name: "Куртка", Price: floatPtr(2000)}
	h := newHarness(t, &fakeExtractor{candidate: partial}, nil)
	enqueue(t, h, product.RawMessage{ID: "m1", Text: relevantText})

	msg, err := h.queue.FetchOldestUnconsumed(ctx)
	require.NoError(t, err)
	outcome := h.worker.processMessage(ctx, msg)
	require.Equal(t, product.OutcomeInvalid, outcome)

	require.Zero(t, h.queue.Len())
	require.Zero(t, h.store.Len())
}

func TestProcessMessageDeletesOnExtractionFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, &fakeExtractor{err: errors.New("model overloaded")}, nil)
	enqueue(t, h, product.RawMessage{ID: "m1", Text: relevantText})

	msg, err := h.queue.FetchOldestUnconsumed(ctx)
	require.NoError(t, err)
	outcome := h.worker.processMessage(ctx, msg)
	require.Equal(t, product.OutcomeExtractionFailed, outcome)

	require.Zero(t, h.queue.Len())
	require.Zero(t, h.store.Len())
}

func TestProcessMessageSecondIdenticalCandidateIsDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, &fakeExtractor{candidate: extractedCandidate()}, nil)
	base := time.Unix(1700000000, 0).UTC()
	enqueue(t, h, product.RawMessage{ID: "m1", Text: relevantText, CapturedAt: base})
	enqueue(t, h, product.RawMessage{ID: "m2", Text: relevantText, CapturedAt: base.Add(time.Minute)})

	for i, want := range []product.Outcome{product.OutcomeStored, product.OutcomeDuplicate} {
		msg, err := h.queue.FetchOldestUnconsumed(ctx)
		require.NoError(t, err)
		outcome := h.worker.processMessage(ctx, msg)
		require.Equal(t, want, outcome, "iteration %d", i)
	}

	// Exactly one record; both messages consumed.
	require.Equal(t, 1, h.store.Len())
	require.Equal(t, 2, h.queue.Len())
	_, err := h.queue.FetchOldestUnconsumed(ctx)
	require.ErrorIs(t, err, product.ErrNoPending)
}

func TestProcessMessageImageAttachmentPrefersImageList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, &fakeExtractor{candidate: extractedCandidate()}, nil)
	enqueue(t, h, product.RawMessage{
		ID:     "m1",
		Text:   relevantText,
		Images: []string{"Zmlyc3Q=", "c2Vjb25k"},
		Image:  "cHJlYXR0YWNoZWQ=",
	})

	msg, err := h.queue.FetchOldestUnconsumed(ctx)
	require.NoError(t, err)
	require.Equal(t, product.OutcomeStored, h.worker.processMessage(ctx, msg))

	records, err := h.store.List(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Zmlyc3Q=", records[0].Image)
}

func TestProcessMessageStoreFailureLeavesMessagePending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := storagememory.NewRecordStore()
	store := &flakyStore{inner: inner, failN: 1}
	h := newHarness(t, &fakeExtractor{candidate: extractedCandidate()}, store)
	enqueue(t, h, product.RawMessage{ID: "m1", Text: relevantText})

	msg, err := h.queue.FetchOldestUnconsumed(ctx)
	require.NoError(t, err)
	require.Equal(t, product.OutcomeStoreFailed, h.worker.processMessage(ctx, msg))

	// Still pending: the consumed flag was not touched.
	msg, err = h.queue.FetchOldestUnconsumed(ctx)
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)

	// The store recovered; the retry succeeds and consumes the message.
	require.Equal(t, product.OutcomeStored, h.worker.processMessage(ctx, msg))
	require.Equal(t, 1, inner.Len())
	_, err = h.queue.FetchOldestUnconsumed(ctx)
	require.ErrorIs(t, err, product.ErrNoPending)
}

func TestRunDrainsQueueUntilCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, &fakeExtractor{candidate: extractedCandidate()}, nil)
	enqueue(t, h, product.RawMessage{ID: "m1", Text: relevantText})

	go h.worker.Run(ctx)

	require.Eventually(t, func() bool {
		return h.store.Len() == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
}

func TestRunBacksOffOnExtractionFailures(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ext := &fakeExtractor{err: errors.New("down")}
	h := newHarness(t, ext, nil)
	base := time.Unix(1700000000, 0).UTC()
	for i, id := range []string{"m1", "m2", "m3"} {
		enqueue(t, h, product.RawMessage{ID: id, Text: relevantText, CapturedAt: base.Add(time.Duration(i) * time.Second)})
	}

	go h.worker.Run(ctx)

	// All three are eventually discarded despite the failing extractor.
	require.Eventually(t, func() bool {
		return h.queue.Len() == 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 3, ext.calls)
	cancel()
}
