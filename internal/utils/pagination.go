// Package utils provides small helpers for parsing and bounding query
// parameters. They carry no domain logic.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Page converts a 1-based page number and size into a row offset and limit.
// Out-of-range inputs are bounded to page >= 1 and size in [1, maxSize].
func Page(page, size, maxSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	limit = Clamp(size, 1, maxSize)
	return (page - 1) * limit, limit
}
