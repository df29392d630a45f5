// Package logging builds the zerolog logger used by the accountd binary,
// with optional size-rotated file output.
package logging
