package models

// Default list paging
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListQuery carries the page/limit/search parameters every list endpoint accepts.
type ListQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
}

// Normalize clamps page and limit to usable values.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

// Offset is the number of rows to skip for the current page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Pagination is the paging block of a list response.
type Pagination struct {
	PerPage     int  `json:"per_page"`
	CurrentPage int  `json:"current_page"`
	TotalData   int  `json:"total_data"`
	TotalPage   int  `json:"total_page"`
	Previous    *int `json:"previous"`
	Next        *int `json:"next"`
}

// NewPagination computes the paging block; Previous and Next are nil at the bounds.
func NewPagination(q ListQuery, total int) Pagination {
	q = q.Normalize()
	totalPage := (total + q.Limit - 1) / q.Limit

	p := Pagination{
		PerPage:     q.Limit,
		CurrentPage: q.Page,
		TotalData:   total,
		TotalPage:   totalPage,
	}
	if q.Page > 1 {
		prev := q.Page - 1
		p.Previous = &prev
	}
	if q.Page+1 <= totalPage {
		next := q.Page + 1
		p.Next = &next
	}
	return p
}

// Page is a list response envelope.
type Page[T any] struct {
	Pagination Pagination `json:"pagination"`
	Payload    []T        `json:"payload"`
}

// Paginate slices an in-memory list for q.
func Paginate[T any](all []T, q ListQuery) Page[T] {
	q = q.Normalize()
	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return Page[T]{
		Pagination: NewPagination(q, len(all)),
		Payload:    all[start:end],
	}
}
