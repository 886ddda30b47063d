// Package pagination reads limit/offset query parameters and shapes list
// responses.
package pagination

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// Parse binds limit and offset from the query string. Missing values take
// the defaults and limits above MaxLimit are clamped. Non-integer, zero or
// negative values are rejected with a 400.
func Parse(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}
	err := echo.QueryParamsBinder(c).
		Int("limit", &p.Limit).
		Int("offset", &p.Offset).
		BindError()
	if err != nil {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "limit and offset must be integers")
	}
	if p.Limit <= 0 {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "limit must be positive")
	}
	if p.Offset < 0 {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "offset must not be negative")
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p, nil
}

func (p Params) query(basePath string, offset int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(offset))
	return basePath + "?" + q.Encode()
}

// Links are relative URLs to the neighbouring pages.
type Links struct {
	Self     string `json:"self"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Data    []T   `json:"data"`
	Total   int   `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
	Links   Links `json:"links"`
}

// NewPage builds the page for items out of total, linking from basePath.
// Data is never null in JSON.
func NewPage[T any](items []T, total int, p Params, basePath string) Page[T] {
	if items == nil {
		items = []T{}
	}
	page := Page[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset < total-p.Limit,
		Links:   Links{Self: p.query(basePath, p.Offset)},
	}
	if page.HasMore {
		page.Links.Next = p.query(basePath, p.Offset+p.Limit)
	}
	if p.Offset > 0 {
		page.Links.Previous = p.query(basePath, max(p.Offset-p.Limit, 0))
	}
	return page
}
