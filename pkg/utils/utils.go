package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TotalPages returns the number of pages needed for total items.
// An empty listing still has one (empty) page.
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// ClampPageSize applies the default when perPage is unset and caps it at max.
func ClampPageSize(perPage, def, max int) int {
	switch {
	case perPage <= 0:
		return def
	case perPage > max:
		return max
	default:
		return perPage
	}
}

// MaxOffset bounds the row offset a page request may produce.
const MaxOffset = math.MaxInt32

// ClampPage keeps page at least 1 and low enough that (page-1)*perPage stays
// within MaxOffset.
func ClampPage(page, perPage int) int {
	if page < 1 {
		return 1
	}
	if perPage < 1 {
		return page
	}
	if last := MaxOffset/perPage + 1; page > last {
		return last
	}
	return page
}

// ParsePositiveInt parses a query string value. Empty input yields fallback.
func ParsePositiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	if v < 1 {
		return 0, fmt.Errorf("%q must be at least 1", raw)
	}
	return v, nil
}
