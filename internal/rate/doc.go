// Package rate holds the Redis fixed-window counter behind the attempt
// limiters.
//
// A failure runs INCR and, on the first hit, PEXPIRE in one script. The
// window trips once its count reaches the limit and clears when the key
// expires or is reset. Credential policy lives in internal/limiters.
package rate
