// Package utils holds small parsing helpers shared by the HTTP and service
// layers. Nothing here knows about books, reviews or users.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// malformed. Whitespace is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Page is a 1-based page request. Size 0 means "everything on one page".
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page/page_size query values. A missing or invalid number
// becomes 1; a missing, invalid or negative size becomes 0 (unpaged); sizes
// above maxSize are capped.
func ParsePage(number, size string, maxSize int) Page {
	p := Page{
		Number: AtoiDefault(number, 1),
		Size:   AtoiDefault(size, 0),
	}
	if p.Number < 1 {
		p.Number = 1
	}
	p.Size = Clamp(p.Size, 0, maxSize)
	return p
}

// Unpaged reports whether the request asks for every row.
func (p Page) Unpaged() bool { return p.Size <= 0 }

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	if p.Unpaged() || p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}
