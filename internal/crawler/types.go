// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// WorkItem pairs a URL with its frontier position. The position is what
// count-based resume skips by, so it must match the frontier exactly.
type WorkItem struct {
	URL   string
	Index int
}

// Payload holds the record-specific fields extracted from a rendered page.
type Payload struct {
	Title         string `json:"title"`
	AttachmentURL string `json:"attachmentUrl"`
	Attachment    []byte `json:"attachment,omitempty"`
}

// PageRecord is the terminal outcome of processing one WorkItem. A record
// with ErrorInfo set is still storable; errors are data, not crashes.
type PageRecord struct {
	URL               string    `json:"url"`
	LoadedURL         string    `json:"loadedUrl"`
	LoadingStartedAt  time.Time `json:"loadingStartedAt"`
	LoadingFinishedAt time.Time `json:"loadingFinishedAt"`
	Payload           *Payload  `json:"payload"`
	ProxyURL          string    `json:"proxyUrl"`
	ErrorInfo         string    `json:"errorInfo,omitempty"`
}

// Failed reports whether the record carries an error outcome.
func (r PageRecord) Failed() bool {
	return r.ErrorInfo != ""
}

// CrawlState is the durable progress record. ProcessedCount is the number of
// work items whose terminal outcome has been flushed; BatchCount is the
// number of batches written. Both only ever grow, and the state is rewritten
// strictly after the batch it describes.
type CrawlState struct {
	ProcessedCount int `json:"processedCount"`
	BatchCount     int `json:"batchCount"`
}

// CrawlOutcome summarizes a finished crawl run.
type CrawlOutcome struct {
	PagesProcessed int
	PagesFailed    int
	BatchesWritten int
	FrontierSize   int
	Elapsed        time.Duration
}

// Profile is the proxy/user-agent pairing applied to one fetch.
type Profile struct {
	ProxyURL  string
	UserAgent string
}

// PageRequest captures everything needed to fetch and render one page.
type PageRequest struct {
	URL         string
	Profile     Profile
	BypassCache bool
}

// PageResult is returned by a PageFetcher implementation. Links and Payload
// are independent outcomes: a page may yield links without a payload.
type PageResult struct {
	LoadedURL string
	Links     []string
	Payload   *Payload
}
