// Package pagination reads paging query parameters and shapes list responses.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a window into an ordered result set.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. A 1-based page
// parameter is accepted instead of offset; when both are given offset wins.
func FromContext(c echo.Context) Params {
	return parse(c.QueryParams())
}

func parse(q url.Values) Params {
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil {
		if page, perr := strconv.Atoi(q.Get("page")); perr == nil && page > 1 {
			offset = (page - 1) * limit
		}
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// HasNext reports whether rows remain after this window.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Page is a list response. Next and Previous repeat the request's query
// with the offset moved, so filters carry over.
type Page[T any] struct {
	Items    []T    `json:"items"`
	Total    int    `json:"total"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
	HasMore  bool   `json:"has_more"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// NewPage builds the response for items fetched with p out of total rows.
// Items is never encoded as null.
func NewPage[T any](u *url.URL, items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	page := Page[T]{
		Items:   items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
	if u == nil {
		return page
	}
	if page.HasMore {
		page.Next = link(u, p.Limit, p.Offset+p.Limit)
	}
	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		page.Previous = link(u, p.Limit, prev)
	}
	return page
}

func link(u *url.URL, limit, offset int) string {
	q := u.Query()
	q.Del("page")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return u.Path + "?" + q.Encode()
}
