// Package attachment downloads discovered resources over HTTP.
package attachment

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jordanhale/snapcrawl/internal/crawler"
)

// Config controls download behavior.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements crawler.AttachmentFetcher using a Colly collector. The
// base collector is cloned per fetch so the proxy and user agent can vary
// per request without racing.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.IgnoreRobotsTxt())
	c.WithTransport(newHTTPTransport())
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch downloads the resource and returns its raw bytes.
func (f *Fetcher) Fetch(ctx context.Context, url string, profile crawler.Profile) ([]byte, error) {
	collector := f.baseCollector.Clone()
	if profile.UserAgent != "" {
		collector.UserAgent = profile.UserAgent
	}
	if profile.ProxyURL != "" {
		if err := collector.SetProxy(profile.ProxyURL); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = fmt.Errorf("download %s: %w", url, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("download canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
	}

	if fetchErr != nil {
		return nil, fetchErr
	}
	return body, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
