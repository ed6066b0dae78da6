package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jordanhale/snapcrawl/internal/buffer"
	"github.com/jordanhale/snapcrawl/internal/crawler"
	memorypublisher "github.com/jordanhale/snapcrawl/internal/publisher/memory"
)

type fakeStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	puts     []string
	putDelay time.Duration

	// failKey/failCount make the next failCount puts of failKey return failErr.
	failKey   string
	failCount int
	failErr   error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *fakeStore) Put(_ context.Context, key string, value []byte) error {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		maxSeen := s.maxInFlight.Load()
		if current <= maxSeen || s.maxInFlight.CompareAndSwap(maxSeen, current) {
			break
		}
	}
	if s.putDelay > 0 {
		time.Sleep(s.putDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCount > 0 && key == s.failKey {
		s.failCount--
		return s.failErr
	}
	s.data[key] = append([]byte(nil), value...)
	s.puts = append(s.puts, key)
	return nil
}

func (s *fakeStore) batch(t *testing.T, key string) []crawler.PageRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	require.True(t, ok, "batch %s not written", key)
	var records []crawler.PageRecord
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func (s *fakeStore) state(t *testing.T) crawler.CrawlState {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[StateKey]
	require.True(t, ok, "state not written")
	var state crawler.CrawlState
	require.NoError(t, json.Unmarshal(data, &state))
	return state
}

func appendRecords(buf *buffer.Buffer, n int) {
	for i := 0; i < n; i++ {
		buf.Append(crawler.PageRecord{URL: fmt.Sprintf("http://site/%d", i)})
	}
}

func TestController_BelowThresholdDoesNotFlush(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 3}, nil, zap.NewNop())

	appendRecords(buf, 2)
	require.NoError(t, ctrl.RecordAppended(context.Background()))

	require.Empty(t, store.puts)
	require.Equal(t, 2, buf.Len())
}

func TestController_ThresholdReachedFlushesBatch(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 3}, nil, zap.NewNop())

	appendRecords(buf, 3)
	require.NoError(t, ctrl.RecordAppended(context.Background()))

	require.Len(t, store.batch(t, "PAGES-000000001"), 3)
	require.Equal(t, crawler.CrawlState{ProcessedCount: 3, BatchCount: 1}, store.state(t))
	require.Zero(t, buf.Len())
}

func TestController_CountersStayConsistentAcrossFlushes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 2}, nil, zap.NewNop())
	ctx := context.Background()

	for _, n := range []int{2, 4, 3} {
		appendRecords(buf, n)
		require.NoError(t, ctrl.Flush(ctx, true))
	}

	state := ctrl.State()
	require.Equal(t, 3, state.BatchCount)
	total := 0
	for i := 1; i <= state.BatchCount; i++ {
		total += len(store.batch(t, BatchKey(i)))
	}
	require.Equal(t, state.ProcessedCount, total)
	require.Equal(t, store.state(t), state)
}

func TestController_ConcurrentTriggersRunAtMostOneFlush(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.putDelay = 5 * time.Millisecond
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 1}, nil, zap.NewNop())
	ctx := context.Background()

	errs := make(chan error, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			buf.Append(crawler.PageRecord{URL: fmt.Sprintf("http://site/%d", n)})
			errs <- ctrl.RecordAppended(ctx)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, ctrl.Flush(ctx, true))

	require.LessOrEqual(t, store.maxInFlight.Load(), int32(1))
	state := ctrl.State()
	require.Equal(t, 10, state.ProcessedCount)
	total := 0
	for i := 1; i <= state.BatchCount; i++ {
		total += len(store.batch(t, BatchKey(i)))
	}
	require.Equal(t, 10, total)
}

func TestController_ForcedFlushDrainsBelowThreshold(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 10}, nil, zap.NewNop())

	appendRecords(buf, 1)
	require.NoError(t, ctrl.Flush(context.Background(), true))

	require.Len(t, store.batch(t, "PAGES-000000001"), 1)
	require.Zero(t, buf.Len())
}

func TestController_ForcedFlushOnEmptyBufferIsNoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ctrl := NewController(store, buffer.New(), Config{FlushThreshold: 1}, nil, zap.NewNop())

	require.NoError(t, ctrl.Flush(context.Background(), true))
	require.Empty(t, store.puts)
}

func TestController_CapacityErrorIsFatal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failKey = "PAGES-000000001"
	store.failCount = 1
	store.failErr = fmt.Errorf("put: %w", ErrValueTooLarge)
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 1}, nil, zap.NewNop())

	appendRecords(buf, 1)
	err := ctrl.RecordAppended(context.Background())

	require.Error(t, err)
	require.True(t, IsFatal(err))
	require.ErrorIs(t, err, ErrValueTooLarge)
}

func TestController_TransientErrorSwallowedThenRetriedWithLargerBuffer(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failKey = "PAGES-000000001"
	store.failCount = 1
	store.failErr = errors.New("store unreachable")
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 2}, nil, zap.NewNop())
	ctx := context.Background()

	appendRecords(buf, 2)
	require.NoError(t, ctrl.RecordAppended(ctx))
	require.Equal(t, 2, buf.Len())
	require.Zero(t, ctrl.State().BatchCount)

	appendRecords(buf, 1)
	require.NoError(t, ctrl.RecordAppended(ctx))
	require.Len(t, store.batch(t, "PAGES-000000001"), 3)
	require.Equal(t, crawler.CrawlState{ProcessedCount: 3, BatchCount: 1}, ctrl.State())
}

func TestController_TransientErrorDuringForcedFlushIsFatal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failKey = "PAGES-000000001"
	store.failCount = 1
	store.failErr = errors.New("store unreachable")
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 10}, nil, zap.NewNop())

	appendRecords(buf, 1)
	err := ctrl.Flush(context.Background(), true)

	require.Error(t, err)
	require.True(t, IsFatal(err))
}

func TestController_StateWriteRetriedOnce(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failKey = StateKey
	store.failCount = 1
	store.failErr = errors.New("store blip")
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 1}, nil, zap.NewNop())

	appendRecords(buf, 1)
	require.NoError(t, ctrl.RecordAppended(context.Background()))
	require.Equal(t, crawler.CrawlState{ProcessedCount: 1, BatchCount: 1}, store.state(t))
}

func TestController_StateWriteFailingTwiceIsFatal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failKey = StateKey
	store.failCount = 2
	store.failErr = errors.New("store down")
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 1}, nil, zap.NewNop())

	appendRecords(buf, 1)
	err := ctrl.RecordAppended(context.Background())

	require.Error(t, err)
	require.True(t, IsFatal(err))
}

func TestController_AppendsDuringWriteStayBuffered(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.putDelay = 20 * time.Millisecond
	buf := buffer.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 2}, nil, zap.NewNop())
	ctx := context.Background()

	appendRecords(buf, 2)
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Flush(ctx, true)
	}()
	time.Sleep(5 * time.Millisecond)
	buf.Append(crawler.PageRecord{URL: "http://site/late"})
	require.NoError(t, <-done)

	require.Equal(t, 1, buf.Len())
	require.Equal(t, "http://site/late", buf.Snapshot()[0].URL)
	require.Equal(t, 2, ctrl.State().ProcessedCount)
}

func TestController_LoadStateDefaultsToZero(t *testing.T) {
	t.Parallel()

	ctrl := NewController(newFakeStore(), buffer.New(), Config{}, nil, zap.NewNop())
	state, err := ctrl.LoadState(context.Background())

	require.NoError(t, err)
	require.Zero(t, state.ProcessedCount)
	require.Zero(t, state.BatchCount)
}

func TestController_LoadStateReadsExisting(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.data[StateKey] = []byte(`{"processedCount":7,"batchCount":2}`)
	ctrl := NewController(store, buffer.New(), Config{}, nil, zap.NewNop())

	state, err := ctrl.LoadState(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.CrawlState{ProcessedCount: 7, BatchCount: 2}, state)
	require.Equal(t, state, ctrl.State())
	require.Equal(t, "PAGES-000000003", BatchKey(state.BatchCount+1))
}

func TestController_PublishesBatchEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	buf := buffer.New()
	pub := memorypublisher.New()
	ctrl := NewController(store, buf, Config{FlushThreshold: 1, Topic: "crawl-batches"}, pub, zap.NewNop())

	appendRecords(buf, 1)
	require.NoError(t, ctrl.RecordAppended(context.Background()))

	events := pub.Messages()
	require.Len(t, events, 1)
	require.Equal(t, "crawl-batches", events[0].Topic)
	event, ok := events[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "PAGES-000000001", event["batch_key"])
	require.Equal(t, 1, event["records"])
}
