// Package worker implements the extraction pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/welanie/dealpipe/internal/metrics"
	"github.com/welanie/dealpipe/internal/product"
)

// Config controls Worker behavior.
type Config struct {
	// Topic names the stored-record event topic; empty disables publishing.
	Topic string
	// IdleInterval is the poll sleep when the queue is empty.
	IdleInterval time.Duration
}

// Worker drains the pending queue one message at a time: filter, extract,
// validate, fingerprint, insert. Each message reaches exactly one terminal
// outcome per iteration; only a store failure leaves it unconsumed for a
// later retry.
type Worker struct {
	queue     product.PendingQueue
	filter    *product.Filter
	extractor product.Extractor
	store     product.RecordStore
	publisher product.Publisher
	hasher    product.Hasher
	clock     product.Clock
	backoff   *product.BackoffPolicy
	cfg       Config
	logger    *zap.Logger

	// failures counts the current run of consecutive extractor/store
	// failures; it drives exponential backoff against an unavailable
	// dependency and resets on any other outcome.
	failures int
}

// New constructs a Worker.
func New(
	queue product.PendingQueue,
	filter *product.Filter,
	extractor product.Extractor,
	store product.RecordStore,
	publisher product.Publisher,
	hasher product.Hasher,
	clock product.Clock,
	backoff *product.BackoffPolicy,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = time.Second
	}
	if backoff == nil {
		backoff = product.NewBackoffPolicy(0, 0)
	}
	return &Worker{
		queue:     queue,
		filter:    filter,
		extractor: extractor,
		store:     store,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		backoff:   backoff,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, polling the pending queue until the context finishes. No
// failure is fatal: the loop logs, backs off when a dependency looks
// unavailable, and keeps going.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		msg, err := w.queue.FetchOldestUnconsumed(ctx)
		if errors.Is(err, product.ErrNoPending) {
			metrics.ObserveBacklogFetch("empty")
			if !w.sleep(ctx, w.cfg.IdleInterval) {
				return
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.ObserveBacklogFetch("error")
			w.failures++
			metrics.SetConsecutiveFailures(w.failures)
			w.logger.Error("fetch pending message failed", zap.Error(err))
			if !w.sleep(ctx, w.backoff.Delay(w.failures)) {
				return
			}
			continue
		}
		metrics.ObserveBacklogFetch("hit")

		outcome := w.processMessage(ctx, msg)
		metrics.ObserveMessage(string(outcome))
		w.logger.Debug("message processed",
			zap.String("msg_id", msg.ID),
			zap.String("outcome", string(outcome)),
		)

		switch outcome {
		case product.OutcomeExtractionFailed, product.OutcomeStoreFailed:
			w.failures++
			metrics.SetConsecutiveFailures(w.failures)
			if !w.sleep(ctx, w.backoff.Delay(w.failures)) {
				return
			}
		default:
			w.failures = 0
			metrics.SetConsecutiveFailures(0)
		}
	}
}

// processMessage runs one message through the pipeline to its terminal
// outcome.
func (w *Worker) processMessage(ctx context.Context, msg product.RawMessage) product.Outcome {
	if !w.filter.ShouldProcess(msg.Text) {
		// Irrelevant messages are purged, not retried or retained.
		w.deleteMessage(ctx, msg.ID, "filtered out")
		return product.OutcomeFilteredOut
	}

	start := time.Now()
	candidate, err := w.extractor.Extract(ctx, msg.Text)
	metrics.ObserveExtraction(time.Since(start))
	if err != nil {
		w.logger.Warn("extraction failed",
			zap.String("msg_id", msg.ID),
			zap.Error(err),
		)
		w.deleteMessage(ctx, msg.ID, "extraction failed")
		return product.OutcomeExtractionFailed
	}

	candidate.Image = bestImage(msg)

	if !product.Validate(candidate) {
		w.deleteMessage(ctx, msg.ID, "invalid candidate")
		return product.OutcomeInvalid
	}

	fingerprint, err := product.Fingerprint(candidate, w.hasher)
	if err != nil {
		w.logger.Error("fingerprint failed", zap.String("msg_id", msg.ID), zap.Error(err))
		return product.OutcomeStoreFailed
	}

	start = time.Now()
	result, recordID, err := w.store.TryInsert(ctx, candidate, fingerprint)
	metrics.ObserveStoreInsert(time.Since(start))
	if err != nil {
		// The message stays unconsumed so a later iteration retries it;
		// the store's duplicate detection makes that retry idempotent.
		w.logger.Error("store insert failed",
			zap.String("msg_id", msg.ID),
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return product.OutcomeStoreFailed
	}

	if result == product.ResultDuplicate {
		if !w.consumeMessage(ctx, msg.ID) {
			return product.OutcomeStoreFailed
		}
		return product.OutcomeDuplicate
	}

	w.publishStored(ctx, recordID, fingerprint, candidate)
	if !w.consumeMessage(ctx, msg.ID) {
		return product.OutcomeStoreFailed
	}
	w.logger.Info("record stored",
		zap.String("msg_id", msg.ID),
		zap.String("record_id", recordID),
		zap.String("fingerprint", fingerprint),
	)
	return product.OutcomeStored
}

// bestImage prefers the first captured image and falls back to the
// pre-attached one.
func bestImage(msg product.RawMessage) string {
	if len(msg.Images) > 0 {
		return msg.Images[0]
	}
	return msg.Image
}

func (w *Worker) deleteMessage(ctx context.Context, id, reason string) {
	if err := w.queue.Delete(ctx, id); err != nil {
		w.logger.Error("delete message failed",
			zap.String("msg_id", id),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

// consumeMessage flips the consumed flag. A failed flip leaves the
// message pending; the caller reports a store failure so it is retried.
func (w *Worker) consumeMessage(ctx context.Context, id string) bool {
	if err := w.queue.MarkConsumed(ctx, id); err != nil {
		w.logger.Error("mark consumed failed", zap.String("msg_id", id), zap.Error(err))
		return false
	}
	return true
}

// publishStored emits a stored-record event. Publishing is best-effort:
// a failure is logged, never treated as a pipeline failure.
func (w *Worker) publishStored(ctx context.Context, recordID, fingerprint string, rec product.CandidateRecord) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"record_id":        recordID,
		"fingerprint":      fingerprint,
		"name":             rec.Name,
		"price":            rec.Price,
		"discounted_price": rec.DiscountedPrice,
		"stored_at":        w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("publish stored-record event failed",
			zap.String("record_id", recordID),
			zap.Error(err),
		)
	}
}

// sleep waits for the duration or the context, whichever ends first, and
// reports whether the loop should continue.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
