// Package pagination provides the page envelope returned by every list
// endpoint.
package pagination

import "encoding/json"

// PageResult holds one page of records. It is immutable once built; Map
// derives a new page with transformed records.
type PageResult[T any] struct {
	records []T
	total   int64
	size    int
	current int
	pages   int64
}

// New builds a page. pages is ceil(total/size), 0 when total is 0.
func New[T any](records []T, total int64, size, current int) *PageResult[T] {
	if records == nil {
		records = []T{}
	}
	if total < 0 {
		total = 0
	}
	return &PageResult[T]{
		records: records,
		total:   total,
		size:    size,
		current: current,
		pages:   PageCount(total, size),
	}
}

// Empty is a page with no matching rows.
func Empty[T any](size, current int) *PageResult[T] {
	return New[T](nil, 0, size, current)
}

// PageCount returns ceil(total/size).
func PageCount(total int64, size int) int64 {
	if total <= 0 || size <= 0 {
		return 0
	}
	s := int64(size)
	return (total + s - 1) / s
}

// Map transforms the records of p, keeping total, size, current and pages.
func Map[T, U any](p *PageResult[T], fn func(T) U) *PageResult[U] {
	out := make([]U, len(p.records))
	for i, r := range p.records {
		out[i] = fn(r)
	}
	return &PageResult[U]{
		records: out,
		total:   p.total,
		size:    p.size,
		current: p.current,
		pages:   p.pages,
	}
}

// Records returns a copy of the page's records in result order.
func (p *PageResult[T]) Records() []T {
	out := make([]T, len(p.records))
	copy(out, p.records)
	return out
}

func (p *PageResult[T]) Len() int     { return len(p.records) }
func (p *PageResult[T]) Total() int64 { return p.total }
func (p *PageResult[T]) Size() int    { return p.size }
func (p *PageResult[T]) Current() int { return p.current }
func (p *PageResult[T]) Pages() int64 { return p.pages }

// HasPrevious reports current > 1.
func (p *PageResult[T]) HasPrevious() bool { return p.current > 1 }

// HasNext reports current < pages.
func (p *PageResult[T]) HasNext() bool { return int64(p.current) < p.pages }

type pageJSON[T any] struct {
	Records     []T   `json:"records"`
	Total       int64 `json:"total"`
	Size        int   `json:"size"`
	Current     int   `json:"current"`
	Pages       int64 `json:"pages"`
	HasPrevious bool  `json:"hasPrevious"`
	HasNext     bool  `json:"hasNext"`
}

func (p *PageResult[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(pageJSON[T]{
		Records:     p.records,
		Total:       p.total,
		Size:        p.size,
		Current:     p.current,
		Pages:       p.pages,
		HasPrevious: p.HasPrevious(),
		HasNext:     p.HasNext(),
	})
}

func (p *PageResult[T]) UnmarshalJSON(data []byte) error {
	var v pageJSON[T]
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = *New(v.Records, v.Total, v.Size, v.Current)
	return nil
}
