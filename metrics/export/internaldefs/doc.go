// Package internaldefs holds the metric names, help strings and latency
// bucket bounds shared by the Prometheus and OpenTelemetry exporters, so
// both expose identical series for the account console.
//
// It performs no I/O.
package internaldefs
