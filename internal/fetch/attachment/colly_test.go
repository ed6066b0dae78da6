package attachment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jordanhale/snapcrawl/internal/crawler"
)

func TestFetcher_DownloadsBody(t *testing.T) {
	t.Parallel()

	var seenAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAgent = r.UserAgent()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	body, err := f.Fetch(context.Background(), srv.URL+"/file.pdf",
		crawler.Profile{UserAgent: "snapcrawl-test/1.0"})

	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.7 fake"), body)
	require.Equal(t, "snapcrawl-test/1.0", seenAgent)
}

func TestFetcher_ServerErrorIsReturned(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.pdf", crawler.Profile{})
	require.Error(t, err)
}

func TestFetcher_InvalidURL(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), "not-a-url", crawler.Profile{})
	require.Error(t, err)
}
