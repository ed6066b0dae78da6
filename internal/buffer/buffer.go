// Package buffer holds completed page records awaiting persistence.
package buffer

import (
	"sync"

	"github.com/jordanhale/snapcrawl/internal/crawler"
)

// Buffer is an ordered, append-only sequence of completed records. Append
// and Snapshot may run concurrently; a snapshot is always a stable prefix,
// and DropPrefix removes exactly that prefix, so records appended during a
// flush are never lost or double-written.
type Buffer struct {
	mu      sync.Mutex
	records []crawler.PageRecord
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds one record to the end of the buffer.
func (b *Buffer) Append(rec crawler.PageRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
}

// Snapshot returns a copy of the current contents without clearing them.
func (b *Buffer) Snapshot() []crawler.PageRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]crawler.PageRecord, len(b.records))
	copy(out, b.records)
	return out
}

// DropPrefix removes the first n records. n must not exceed the length at
// the time of the corresponding Snapshot call.
func (b *Buffer) DropPrefix(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.records) {
		n = len(b.records)
	}
	b.records = append([]crawler.PageRecord(nil), b.records[n:]...)
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
