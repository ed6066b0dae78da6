// Package scheduler owns the URL frontier and dispatches work items to a
// fixed-size worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jordanhale/snapcrawl/internal/buffer"
	"github.com/jordanhale/snapcrawl/internal/checkpoint"
	"github.com/jordanhale/snapcrawl/internal/crawler"
	"github.com/jordanhale/snapcrawl/internal/frontier"
)

// Config controls scheduling behavior.
type Config struct {
	// Concurrency is the number of simultaneously active workers.
	Concurrency int
	// FetchTimeout bounds each page and attachment fetch.
	FetchTimeout time.Duration
	// RequestDelay is an optional pause per worker between items.
	RequestDelay time.Duration
	// BypassCache disables the browser cache for every page fetch.
	BypassCache bool
}

// Scheduler runs the crawl: workers claim frontier positions in order, feed
// newly discovered URLs back into the frontier, and append exactly one
// record per item to the result buffer. The crawl terminates at quiescence
// (cursor at frontier end with no active worker) or on a fatal flush error.
type Scheduler struct {
	cfg         Config
	frontier    *frontier.Frontier
	pages       crawler.PageFetcher
	attachments crawler.AttachmentFetcher
	profiles    crawler.ProfileSource
	buf         *buffer.Buffer
	flush       *checkpoint.Controller
	clock       crawler.Clock
	logger      *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	cursor int
	active int
	fatal  error

	processedItems atomic.Int64
	failedItems    atomic.Int64
}

// New constructs a Scheduler.
func New(
	cfg Config,
	front *frontier.Frontier,
	pages crawler.PageFetcher,
	attachments crawler.AttachmentFetcher,
	profiles crawler.ProfileSource,
	buf *buffer.Buffer,
	flush *checkpoint.Controller,
	clock crawler.Clock,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:         cfg,
		frontier:    front,
		pages:       pages,
		attachments: attachments,
		profiles:    profiles,
		buf:         buf,
		flush:       flush,
		clock:       clock,
		logger:      logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Run seeds the frontier and blocks until the crawl finishes. On resume the
// dispatch cursor starts at the persisted processedCount, so the first
// processedCount frontier positions are never re-dispatched. The skip is by
// position, not URL identity: changing the seed list between runs makes
// resume approximate.
func (s *Scheduler) Run(ctx context.Context, seeds []string) (crawler.CrawlOutcome, error) {
	start := time.Now()

	state, err := s.flush.LoadState(ctx)
	if err != nil {
		return crawler.CrawlOutcome{}, err
	}
	s.frontier.Append(seeds...)
	s.mu.Lock()
	s.cursor = state.ProcessedCount
	s.mu.Unlock()
	if state.ProcessedCount > 0 {
		s.logger.Info("resuming crawl",
			zap.Int("processed_count", state.ProcessedCount),
			zap.Int("batch_count", state.BatchCount),
			zap.Int("seeds", len(seeds)),
		)
	}

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.work(ctx, id)
		}(i)
	}
	wg.Wait()

	outcome := crawler.CrawlOutcome{
		PagesProcessed: int(s.processedItems.Load()),
		PagesFailed:    int(s.failedItems.Load()),
		FrontierSize:   s.frontier.Len(),
		Elapsed:        time.Since(start),
	}

	s.mu.Lock()
	fatal := s.fatal
	s.mu.Unlock()
	if fatal != nil {
		// No final flush after a durability fatal; buffered state is not
		// trusted past this point.
		outcome.BatchesWritten = s.flush.State().BatchCount
		return outcome, fatal
	}
	if err := ctx.Err(); err != nil {
		outcome.BatchesWritten = s.flush.State().BatchCount
		return outcome, fmt.Errorf("crawl canceled: %w", err)
	}

	if err := s.flush.Flush(ctx, true); err != nil {
		outcome.BatchesWritten = s.flush.State().BatchCount
		return outcome, err
	}
	outcome.BatchesWritten = s.flush.State().BatchCount
	return outcome, nil
}

func (s *Scheduler) work(ctx context.Context, id int) {
	s.logger.Debug("worker started", zap.Int("worker", id))
	for {
		item, ok := s.next(ctx)
		if !ok {
			s.logger.Debug("worker stopped", zap.Int("worker", id))
			return
		}
		links := s.process(ctx, item)
		s.complete(links)

		if s.cfg.RequestDelay > 0 && ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.RequestDelay):
			}
		}
	}
}

// next claims the next undispatched frontier position, or blocks until one
// appears. It returns false at quiescence, on fatal abort, or when the
// context finishes.
func (s *Scheduler) next(ctx context.Context) (crawler.WorkItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.fatal != nil || ctx.Err() != nil {
			s.cond.Broadcast()
			return crawler.WorkItem{}, false
		}
		if s.cursor < s.frontier.Len() {
			item := s.frontier.At(s.cursor)
			s.cursor++
			s.active++
			return item, true
		}
		if s.active == 0 {
			s.cond.Broadcast()
			return crawler.WorkItem{}, false
		}
		s.cond.Wait()
	}
}

// complete appends discovered links to the frontier and releases the worker
// slot. Appending before active-- keeps quiescence sound: no worker can
// observe an empty frontier while another still has links to contribute.
func (s *Scheduler) complete(links []string) {
	if len(links) > 0 {
		first := s.frontier.Append(links...)
		s.logger.Debug("links queued", zap.Int("count", len(links)), zap.Int("first_index", first))
	}
	s.mu.Lock()
	s.active--
	s.cond.Broadcast()
	s.mu.Unlock()
}

// process runs the per-item pipeline and returns discovered links. Every
// invocation, success or failure, appends exactly one record to the buffer
// and evaluates the flush policy. Item failures are recorded, never
// escalated; only a fatal flush error aborts the crawl.
func (s *Scheduler) process(ctx context.Context, item crawler.WorkItem) []string {
	profile := s.profiles.Next()
	record := crawler.PageRecord{
		URL:              item.URL,
		ProxyURL:         profile.ProxyURL,
		LoadingStartedAt: s.clock.Now(),
	}
	var links []string

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	result, err := s.pages.Fetch(fetchCtx, crawler.PageRequest{
		URL:         item.URL,
		Profile:     profile,
		BypassCache: s.cfg.BypassCache,
	})
	cancel()
	if err != nil {
		record.ErrorInfo = err.Error()
		s.logger.Warn("page fetch failed",
			zap.String("url", item.URL),
			zap.Int("frontier_index", item.Index),
			zap.Error(err),
		)
	} else {
		record.LoadedURL = result.LoadedURL
		links = result.Links
		record.Payload = s.materializePayload(ctx, item, result, profile, &record)
	}
	record.LoadingFinishedAt = s.clock.Now()

	crawler.TotalPagesProcessed.Inc()
	s.processedItems.Add(1)
	if record.Failed() {
		crawler.TotalPageErrors.Inc()
		s.failedItems.Add(1)
	}

	s.buf.Append(record)
	if err := s.flush.RecordAppended(ctx); err != nil {
		s.abort(err)
	}
	return links
}

// materializePayload downloads the attachment referenced by an extracted
// payload. An attachment failure turns the record into an error outcome but
// leaves link discovery untouched; the two are independent.
func (s *Scheduler) materializePayload(
	ctx context.Context,
	item crawler.WorkItem,
	result crawler.PageResult,
	profile crawler.Profile,
	record *crawler.PageRecord,
) *crawler.Payload {
	if result.Payload == nil {
		return nil
	}
	payload := *result.Payload
	if payload.AttachmentURL == "" {
		return &payload
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	body, err := s.attachments.Fetch(fetchCtx, payload.AttachmentURL, profile)
	cancel()
	if err != nil {
		record.ErrorInfo = err.Error()
		s.logger.Warn("attachment fetch failed",
			zap.String("url", item.URL),
			zap.String("attachment_url", payload.AttachmentURL),
			zap.Error(err),
		)
		return nil
	}
	payload.Attachment = body
	return &payload
}

func (s *Scheduler) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
		s.logger.Error("aborting crawl on fatal flush error", zap.Error(err))
	}
	s.cond.Broadcast()
}
