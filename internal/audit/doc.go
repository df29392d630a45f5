// Package audit queues account events and hands them to a [Sink] from one
// background goroutine.
//
// A [Dispatcher] either drops events when its queue is full or blocks the
// caller until the request context ends; both paths count losses in
// [Dispatcher.Dropped]. Close drains whatever is queued before returning.
//
// The package decides nothing about which events exist. The console builds
// every [Event]; this package only stamps missing IDs and timestamps.
package audit
