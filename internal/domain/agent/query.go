package agent

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Strob0t/forgetop/internal/domain"
)

// DefaultPageSize is used when a query carries no usable page size.
const DefaultPageSize = 10

// FilterAll passes every record.
const FilterAll = "all"

// SortField selects the key the query engine sorts by.
type SortField string

const (
	SortStartTime SortField = "start_time"
	SortCost      SortField = "cost"
	SortModel     SortField = "model"
	SortStatus    SortField = "status"
)

// Order is the sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// QueryParams describes one page request.
type QueryParams struct {
	Filter   string    `json:"filter"`
	SortBy   SortField `json:"sort_by"`
	Order    Order     `json:"order"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// Page is the result of a query.
type Page struct {
	Items      []Record `json:"items"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// StatusCounts summarises the unfiltered agent set for header counters.
type StatusCounts struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Queued    int `json:"queued"`
	Paused    int `json:"paused"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Query filters, sorts and paginates agents. The input slice is never
// modified. A page past the end yields an empty, non-nil Items slice.
func Query(agents []Record, p QueryParams) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}

	filtered := make([]Record, 0, len(agents))
	for i := range agents {
		if matches(&agents[i], p.Filter) {
			filtered = append(filtered, agents[i])
		}
	}

	if p.SortBy != "" {
		cmpFn := comparator(p.SortBy)
		sign := 1
		if p.Order == OrderDesc {
			sign = -1
		}
		slices.SortStableFunc(filtered, func(a, b Record) int {
			return sign * cmpFn(&a, &b)
		})
	}

	total := len(filtered)
	totalPages := total / p.PageSize
	if total%p.PageSize != 0 {
		totalPages++
	}

	// Page and PageSize may come straight from a request; compare before
	// multiplying so huge values cannot overflow.
	items := []Record{}
	if p.Page <= totalPages {
		start := (p.Page - 1) * p.PageSize
		end := start + min(p.PageSize, total-start)
		items = filtered[start:end]
	}

	return Page{
		Items:      items,
		Total:      total,
		TotalPages: totalPages,
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
}

// CountByStatus counts agents per status over the full, unfiltered set.
func CountByStatus(agents []Record) StatusCounts {
	var c StatusCounts
	for i := range agents {
		c.Total++
		switch agents[i].Status {
		case StatusRunning:
			c.Running++
		case StatusQueued:
			c.Queued++
		case StatusPaused:
			c.Paused++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		case StatusCancelled:
			c.Cancelled++
		}
	}
	return c
}

func matches(r *Record, filter string) bool {
	if filter == "" || filter == FilterAll {
		return true
	}
	return string(r.Status) == filter
}

func comparator(f SortField) func(a, b *Record) int {
	switch f {
	case SortCost:
		return func(a, b *Record) int { return cmp.Compare(a.CostUSD, b.CostUSD) }
	case SortModel:
		return func(a, b *Record) int { return strings.Compare(a.Model, b.Model) }
	case SortStatus:
		return func(a, b *Record) int { return strings.Compare(string(a.Status), string(b.Status)) }
	default:
		return func(a, b *Record) int { return a.StartTime.Compare(b.StartTime) }
	}
}

// ParseFilter validates a filter string ("all" or a status).
func ParseFilter(s string) (string, error) {
	if s == "" || s == FilterAll {
		return FilterAll, nil
	}
	if !Status(s).IsValid() {
		return "", fmt.Errorf("invalid filter %q: %w", s, domain.ErrValidation)
	}
	return s, nil
}

// ParseSortField validates a sort key. Empty means start time.
func ParseSortField(s string) (SortField, error) {
	switch SortField(s) {
	case "":
		return SortStartTime, nil
	case SortStartTime, SortCost, SortModel, SortStatus:
		return SortField(s), nil
	}
	return "", fmt.Errorf("invalid sort field %q: %w", s, domain.ErrValidation)
}

// ParseOrder validates a sort order. Empty means ascending.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "":
		return OrderAsc, nil
	case OrderAsc, OrderDesc:
		return Order(s), nil
	}
	return "", fmt.Errorf("invalid sort order %q: %w", s, domain.ErrValidation)
}
