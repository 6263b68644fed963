// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
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

// Window returns the half-open index range [lo, hi) that page (1-based)
// addresses in a list of total items. Pages past the end yield an empty
// range at total.
func Window(total, page, pageSize int) (lo, hi int) {
	if page < 1 || pageSize < 1 {
		return 0, 0
	}
	lo = Clamp((page-1)*pageSize, 0, total)
	hi = Clamp(lo+pageSize, 0, total)
	return lo, hi
}

// TotalPages is the number of pages of pageSize needed for total items.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize < 1 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
