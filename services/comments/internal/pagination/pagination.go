// Package pagination maps a client page parameter to a store window.
package pagination

import (
	"math"
	"strconv"
	"strings"
)

// PageSize is the fixed number of comments per page.
const PageSize = 30

// Window is a resolved page with its skip/limit.
type Window struct {
	Page  int
	Skip  int
	Limit int
}

// Resolve parses raw and falls back to page 1 when it is absent, malformed,
// below 1, or past the last page a maxCount-capped post could have.
// maxCount <= 0 means no cap.
func Resolve(raw string, pageSize, maxCount int) Window {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	page := 1
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 1 {
		page = n
	}
	if maxCount > 0 && page > MaxPage(maxCount, pageSize) {
		page = 1
	}
	if page > math.MaxInt/pageSize {
		page = 1
	}
	return Window{Page: page, Skip: (page - 1) * pageSize, Limit: pageSize}
}

// MaxPage is ceil(total/pageSize).
func MaxPage(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
