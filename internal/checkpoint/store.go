// Package checkpoint provides durable key-value persistence for crawl
// progress and implements the batching flush pipeline on top of it.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
)

// StateKey is the key under which the CrawlState record is stored.
const StateKey = "STATE"

// ErrNotFound signals that the requested key does not exist in the store.
var ErrNotFound = errors.New("checkpoint record not found")

// ErrValueTooLarge signals that a value exceeds the store's size limit.
// It is always fatal: a buffer that no longer fits in one batch cannot be
// persisted, so no partial state is trusted and the process must stop.
var ErrValueTooLarge = errors.New("checkpoint value exceeds store size limit")

// Store is durable key-value persistence for batches and crawl state.
// Values are JSON documents; keys are flat strings.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
}

// BatchKey derives the storage key for batch n (1-based), zero-padded so
// that lexicographic and numeric order agree.
func BatchKey(n int) string {
	return fmt.Sprintf("PAGES-%09d", n)
}

// FatalError marks a durability failure that must abort the crawl.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal checkpoint failure: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
