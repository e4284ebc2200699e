// Package utils holds small helpers shared across layers. Nothing in here
// knows about queue records or HTTP; keep it that way.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 integer, falling back to def when s is
// empty or not a valid integer. Input is not trimmed: " 42" is invalid.
//
// It exists so query-parameter parsing in handlers reads as a single call
// instead of a strconv.Atoi error dance.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ClampInt bounds n to the inclusive range [lo, hi]. Callers are expected to
// pass lo <= hi; the result is unspecified otherwise.
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
