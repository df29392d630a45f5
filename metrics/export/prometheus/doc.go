// Package prometheus renders account console metrics in the Prometheus text
// exposition format.
//
// An [Exporter] reads a console snapshot on every scrape. Counter names are
// goaccount_*_total; the single histogram is
// goaccount_dispatch_latency_seconds. Nothing is registered globally:
// callers mount [Exporter.Handler].
package prometheus
