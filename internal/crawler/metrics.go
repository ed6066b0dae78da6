package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesProcessed tracks work items that reached a terminal outcome.
	TotalPagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapcrawl_pages_processed_total",
		Help: "The total number of work items processed to a terminal outcome.",
	})
	// TotalPageErrors tracks work items whose record carries an error detail.
	TotalPageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapcrawl_page_errors_total",
		Help: "The total number of work items that produced an error record.",
	})
	// TotalFlushes tracks successful batch writes to the checkpoint store.
	TotalFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapcrawl_flushes_total",
		Help: "The total number of batches written to the checkpoint store.",
	})
	// TotalFlushFailures tracks flushes that failed at the store.
	TotalFlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapcrawl_flush_failures_total",
		Help: "The total number of failed checkpoint store writes.",
	})
	// TotalRecordsFlushed tracks page records made durable.
	TotalRecordsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapcrawl_records_flushed_total",
		Help: "The total number of page records written across all batches.",
	})
	// FrontierSize reports the current length of the URL frontier.
	FrontierSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapcrawl_frontier_size",
		Help: "The current number of URLs in the frontier, dispatched or not.",
	})
)
