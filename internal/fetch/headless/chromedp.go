// Package headless implements the page fetcher with a headless browser.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jordanhale/snapcrawl/internal/crawler"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps simultaneous browser sessions; 0 means unlimited.
	MaxParallel       int
	NavigationTimeout time.Duration
	// LinkSelector matches the anchors harvested from the rendered DOM.
	LinkSelector string
	// TitleSelector and AttachmentSelector drive payload extraction. When
	// TitleSelector is empty no payload is extracted and the crawl is pure
	// link discovery.
	TitleSelector      string
	AttachmentSelector string
	// AttachmentAttr is the attribute read off the attachment element
	// (href, src, ...).
	AttachmentAttr string
}

// Fetcher implements crawler.PageFetcher using chromedp. The proxy and user
// agent vary per request, so each fetch gets its own exec allocator rather
// than sharing one browser process.
type Fetcher struct {
	cfg     Config
	limiter chan struct{}
}

// New creates a headless fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = "a[href]"
	}
	if cfg.AttachmentAttr == "" {
		cfg.AttachmentAttr = "href"
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Fetcher{cfg: cfg, limiter: limiter}, nil
}

// Fetch navigates to the requested URL, waits for the document to settle,
// and extracts outbound links plus the optional payload.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.PageRequest) (crawler.PageResult, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.PageResult{}, err
	}
	defer f.release()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if request.Profile.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(request.Profile.ProxyURL))
	}
	if request.Profile.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(request.Profile.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	var (
		loadedURL string
		linksJSON string
	)
	actions := []chromedp.Action{
		network.Enable(),
		network.SetCacheDisabled(request.BypassCache),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&loadedURL),
		chromedp.Evaluate(linksExpr(f.cfg.LinkSelector), &linksJSON),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return crawler.PageResult{}, fmt.Errorf("chromedp run: %w", err)
	}

	var links []string
	if err := json.Unmarshal([]byte(linksJSON), &links); err != nil {
		return crawler.PageResult{}, fmt.Errorf("decode links: %w", err)
	}

	result := crawler.PageResult{LoadedURL: loadedURL, Links: links}
	if f.cfg.TitleSelector != "" {
		payload, err := f.extractPayload(taskCtx)
		if err != nil {
			return crawler.PageResult{}, err
		}
		result.Payload = payload
	}
	return result, nil
}

// extractPayload reads the title and attachment URL off the rendered DOM.
// A page without a matching title element yields no payload; that is a
// normal discovery-only outcome, not an error.
func (f *Fetcher) extractPayload(ctx context.Context) (*crawler.Payload, error) {
	var payloadJSON string
	expr := payloadExpr(f.cfg.TitleSelector, f.cfg.AttachmentSelector, f.cfg.AttachmentAttr)
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &payloadJSON)); err != nil {
		return nil, fmt.Errorf("extract payload: %w", err)
	}
	var payload struct {
		Title         *string `json:"title"`
		AttachmentURL string  `json:"attachmentUrl"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Title == nil {
		return nil, nil
	}
	return &crawler.Payload{Title: *payload.Title, AttachmentURL: payload.AttachmentURL}, nil
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for browser slot: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter != nil {
		<-f.limiter
	}
}

func linksExpr(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(
		`JSON.stringify(Array.from(document.querySelectorAll(%s)).map(a => a.href))`, sel)
}

func payloadExpr(titleSelector, attachmentSelector, attachmentAttr string) string {
	title, _ := json.Marshal(titleSelector)
	attachment, _ := json.Marshal(attachmentSelector)
	attr, _ := json.Marshal(attachmentAttr)
	return fmt.Sprintf(`JSON.stringify((() => {
		const titleEl = document.querySelector(%s);
		if (!titleEl) {
			return {title: null, attachmentUrl: ""};
		}
		let attachmentUrl = "";
		const attachmentEl = %s ? document.querySelector(%s) : null;
		if (attachmentEl) {
			const raw = attachmentEl.getAttribute(%s);
			if (raw) {
				attachmentUrl = new URL(raw, document.baseURI).href;
			}
		}
		return {title: titleEl.textContent.trim(), attachmentUrl: attachmentUrl};
	})())`, title, attachment, attachment, attr)
}
