// Package frontier holds the growing, ordered URL sequence for a crawl.
package frontier

import (
	"sync"

	"github.com/jordanhale/snapcrawl/internal/crawler"
)

// Frontier is an append-only ordered sequence of URLs. Workers may only
// append; positions never shift, which is what makes count-based resume
// sound. URLs are not deduplicated: if two workers discover the same link
// independently it is queued twice. Callers wanting dedup should layer a
// seen-set on top.
type Frontier struct {
	mu   sync.Mutex
	urls []string
}

// New creates a Frontier seeded with the given URLs.
func New(seeds ...string) *Frontier {
	f := &Frontier{}
	f.Append(seeds...)
	return f
}

// Append adds URLs to the end of the frontier and returns the index of the
// first URL appended.
func (f *Frontier) Append(urls ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := len(f.urls)
	f.urls = append(f.urls, urls...)
	crawler.FrontierSize.Set(float64(len(f.urls)))
	return first
}

// At returns the work item at position i. It panics on out-of-range access,
// matching slice semantics; the scheduler never reads past Len.
func (f *Frontier) At(i int) crawler.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return crawler.WorkItem{URL: f.urls[i], Index: i}
}

// Len returns the current number of URLs, dispatched or not.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}
