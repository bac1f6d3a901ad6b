package history

import (
	"cmp"
	"slices"
	"time"

	"farm-telemetry-backend/internal/timeparse"
)

// DefaultPageSize matches the history grid of the dashboard.
const DefaultPageSize = 8

// Timed is anything carrying a resolved observation instant.
type Timed interface {
	Instant() timeparse.Instant
}

// Filter keeps the items inside the window. The threshold is computed once from now,
// so a single pass never mixes cutoffs. WindowAll keeps everything, including items
// without a valid time. The input order is preserved.
func Filter[T Timed](items []T, w Window, now time.Time) []T {
	if !w.Bounded() {
		return slices.Clone(items)
	}
	threshold := w.Threshold(now)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if it.Instant().Since(threshold) {
			out = append(out, it)
		}
	}
	return out
}

// CompareNewestFirst orders valid instants newest first and puts invalid ones last.
// Every branch returns an explicit sign.
func CompareNewestFirst(a, b timeparse.Instant) int {
	switch {
	case a.Valid() && b.Valid():
		return cmp.Compare(b.Millis(), a.Millis())
	case a.Valid():
		return -1
	case b.Valid():
		return 1
	default:
		return 0
	}
}

// SortNewestFirst sorts in place. The sort is stable: invalid items keep their
// relative input order, and so do items sharing an instant.
func SortNewestFirst[T Timed](items []T) {
	slices.SortStableFunc(items, func(a, b T) int {
		return CompareNewestFirst(a.Instant(), b.Instant())
	})
}

// Page is one slice of an ordered result.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// TotalPages is ceil(count/pageSize) with a minimum of one.
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if count <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

// Paginate returns items[(page-1)*pageSize : page*pageSize]. Pages outside
// [1, TotalPages] are empty.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := Page[T]{
		Items:      []T{},
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(len(items), pageSize),
		Total:      len(items),
	}
	if page < 1 {
		return p
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return p
	}
	end := min(start+pageSize, len(items))
	p.Items = items[start:end]
	return p
}

// Select filters, sorts and pages items for the view using a single now.
// The view's page is clamped to the filtered page count before slicing.
func Select[T Timed](items []T, v *View, now time.Time) Page[T] {
	filtered := Filter(items, v.Window, now)
	SortNewestFirst(filtered)
	v.Clamp(TotalPages(len(filtered), v.PageSize))
	return Paginate(filtered, v.Page, v.PageSize)
}
