package catalog

import "fmt"

// Page is one slice of the catalog with navigation metadata
type Page struct {
	Items      []Entry `json:"items"`
	PageIndex  int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	TotalCount int     `json:"total_count"`
	HasPrev    bool    `json:"has_prev"`
	HasNext    bool    `json:"has_next"`
}

// Paginate returns page pageIndex (0-based) of entries.
//
// An empty input has zero pages. An index outside [0, TotalPages) yields no
// items and no navigation but still reports the totals. A non-positive
// pageSize falls back to DefaultPageSize.
func Paginate(entries []Entry, pageIndex, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total := len(entries)
	totalPages := (total + pageSize - 1) / pageSize

	p := Page{
		Items:      []Entry{},
		PageIndex:  pageIndex,
		TotalPages: totalPages,
		TotalCount: total,
	}

	if pageIndex < 0 || pageIndex >= totalPages {
		return p
	}

	p.HasPrev = pageIndex > 0
	p.HasNext = pageIndex < totalPages-1

	start := pageIndex * pageSize
	end := min(start+pageSize, total)
	p.Items = entries[start:end]

	return p
}

// FormatSize renders a size in kilobytes with one fractional digit
func FormatSize(kb float64) string {
	return fmt.Sprintf("%.1f KB", kb)
}
