package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jordanhale/snapcrawl/internal/buffer"
	"github.com/jordanhale/snapcrawl/internal/crawler"
)

// Config controls flush behavior.
type Config struct {
	// FlushThreshold is the minimum buffered record count for a non-forced
	// flush to write a batch.
	FlushThreshold int
	// Topic, when set together with a publisher, receives one event per
	// written batch.
	Topic string
}

// Controller decides when the result buffer is drained into the store and
// performs the write atomically with respect to progress accounting. At most
// one flush executes at a time: overlapping non-forced triggers are skipped,
// not queued, and retried on the next trigger with a larger buffer.
type Controller struct {
	store     Store
	buf       *buffer.Buffer
	cfg       Config
	publisher crawler.Publisher
	logger    *zap.Logger
	runID     string

	// flushMu is the sole guard over batch-key and counter invariants.
	flushMu sync.Mutex

	stateMu sync.Mutex
	state   crawler.CrawlState
}

// NewController constructs a Controller. publisher may be nil.
func NewController(
	store Store,
	buf *buffer.Buffer,
	cfg Config,
	publisher crawler.Publisher,
	logger *zap.Logger,
) *Controller {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:     store,
		buf:       buf,
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		runID:     uuid.NewString(),
	}
}

// LoadState reads the persisted CrawlState, defaulting to zero counters when
// no state record exists yet.
func (c *Controller) LoadState(ctx context.Context) (crawler.CrawlState, error) {
	data, err := c.store.Get(ctx, StateKey)
	if errors.Is(err, ErrNotFound) {
		c.setState(crawler.CrawlState{})
		return crawler.CrawlState{}, nil
	}
	if err != nil {
		return crawler.CrawlState{}, fmt.Errorf("load crawl state: %w", err)
	}
	var state crawler.CrawlState
	if err := json.Unmarshal(data, &state); err != nil {
		return crawler.CrawlState{}, fmt.Errorf("decode crawl state: %w", err)
	}
	c.setState(state)
	return state, nil
}

// State returns the last known CrawlState.
func (c *Controller) State() crawler.CrawlState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Controller) setState(state crawler.CrawlState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = state
}

// RecordAppended is the non-forced trigger invoked after each buffer append.
// Any error returned is fatal to the crawl.
func (c *Controller) RecordAppended(ctx context.Context) error {
	return c.flush(ctx, false)
}

// Flush drains the buffer into the store. A forced flush bypasses the
// threshold but still waits on the in-progress guard; it is invoked once at
// crawl end, so any storage error is fatal there.
func (c *Controller) Flush(ctx context.Context, force bool) error {
	return c.flush(ctx, force)
}

func (c *Controller) flush(ctx context.Context, force bool) error {
	if force {
		c.flushMu.Lock()
	} else if !c.flushMu.TryLock() {
		// A flush is in progress; this trigger is a no-op, not a queued
		// duplicate. The next trigger sees the accumulated buffer.
		return nil
	}
	defer c.flushMu.Unlock()

	snapshot := c.buf.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	if !force && len(snapshot) < c.cfg.FlushThreshold {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return &FatalError{Err: fmt.Errorf("encode batch: %w", err)}
	}

	state := c.State()
	key := BatchKey(state.BatchCount + 1)
	if err := c.store.Put(ctx, key, data); err != nil {
		crawler.TotalFlushFailures.Inc()
		if errors.Is(err, ErrValueTooLarge) || force {
			return &FatalError{Err: fmt.Errorf("write batch %s: %w", key, err)}
		}
		c.logger.Warn("batch write failed, retrying on next trigger",
			zap.String("batch_key", key),
			zap.Int("records", len(snapshot)),
			zap.Error(err),
		)
		return nil
	}

	// The batch is durable; only now may the snapshotted prefix leave the
	// buffer and the counters advance. Records appended during the write
	// stay buffered for the next batch.
	c.buf.DropPrefix(len(snapshot))
	next := crawler.CrawlState{
		ProcessedCount: state.ProcessedCount + len(snapshot),
		BatchCount:     state.BatchCount + 1,
	}
	if err := c.persistState(ctx, next); err != nil {
		// The batch exists but STATE does not reflect it. Retrying the
		// counter write alone is safe; a second failure risks resume
		// inconsistency and must stop the crawl.
		c.logger.Warn("crawl state write failed, retrying once", zap.Error(err))
		if err := c.persistState(ctx, next); err != nil {
			crawler.TotalFlushFailures.Inc()
			return &FatalError{Err: fmt.Errorf("persist crawl state after batch %s: %w", key, err)}
		}
	}
	c.setState(next)

	crawler.TotalFlushes.Inc()
	crawler.TotalRecordsFlushed.Add(float64(len(snapshot)))
	c.logger.Info("batch flushed",
		zap.String("batch_key", key),
		zap.Int("records", len(snapshot)),
		zap.Int("processed_count", next.ProcessedCount),
		zap.Int("batch_count", next.BatchCount),
	)
	c.publishBatchEvent(ctx, key, len(snapshot), next)
	return nil
}

func (c *Controller) persistState(ctx context.Context, state crawler.CrawlState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode crawl state: %w", err)
	}
	if err := c.store.Put(ctx, StateKey, data); err != nil {
		return fmt.Errorf("write crawl state: %w", err)
	}
	return nil
}

func (c *Controller) publishBatchEvent(ctx context.Context, key string, records int, state crawler.CrawlState) {
	if c.publisher == nil || c.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":          c.runID,
		"batch_key":       key,
		"records":         records,
		"processed_count": state.ProcessedCount,
		"batch_count":     state.BatchCount,
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, payload); err != nil {
		c.logger.Warn("batch event publish failed", zap.String("batch_key", key), zap.Error(err))
	}
}
