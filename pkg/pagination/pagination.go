package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext extracts pagination parameters from the echo context.
// page is clamped to >= 1, limit to [1, MaxLimit].
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	limit := DefaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
		if limit < 1 {
			limit = 1
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
	}

	return Params{Page: page, Limit: limit}
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Response wraps a paginated API response.
type Response struct {
	Status      string      `json:"status"`
	Data        interface{} `json:"data"`
	Total       int         `json:"total"`
	CurrentPage int         `json:"currentPage"`
	TotalPages  int         `json:"totalPages"`
	HasMore     bool        `json:"hasMore"`
}

// NewResponse builds the pagination envelope for a page of results.
func NewResponse(data interface{}, total, page, limit int) *Response {
	totalPages := (total + limit - 1) / limit
	return &Response{
		Status:      "success",
		Data:        data,
		Total:       total,
		CurrentPage: page,
		TotalPages:  totalPages,
		HasMore:     page < totalPages,
	}
}
