// Package services implements the back-office operations that coordinate
// repositories, the step-up gate and the audit bus: logins, the session
// registry, role administration and log purges. Services return *auth.Error
// values so handlers can map failures to HTTP statuses.
package services

// Pagination describes one page of a listing
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NormalizePage clamps page to at least 1 and limit to [1, max], using def when
// limit is not positive.
func NormalizePage(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return page, limit
}

// NewPagination computes the page count for total rows.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
