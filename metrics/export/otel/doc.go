// Package otel exposes account console metrics through OpenTelemetry
// observable instruments.
//
// Each console counter becomes an Int64ObservableCounter. The latency
// histogram becomes one cumulative bucket gauge with an "le" attribute
// plus a count gauge. One callback reads the console snapshot per
// collection. Callers own the MeterProvider.
package otel
