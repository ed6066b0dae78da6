package crawler

import (
	"context"
	"time"
)

// PageFetcher drives a browser against a URL and returns the rendered
// page's resolved location, outbound links, and an optional extracted
// payload. How extraction executes is an implementation concern.
type PageFetcher interface {
	Fetch(ctx context.Context, request PageRequest) (PageResult, error)
}

// AttachmentFetcher downloads a discovered resource as raw bytes.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url string, profile Profile) ([]byte, error)
}

// ProfileSource selects the proxy/user-agent pairing for the next request.
type ProfileSource interface {
	Next() Profile
}

// Publisher pushes crawl events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
