package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DefaultMaxPages bounds pagination when following "next" links.
const DefaultMaxPages = 50

// =============================================================================
// LIST NORMALIZATION
// =============================================================================

// ListShape tells which of the two list encodings the backend used.
type ListShape int

const (
	ListBare      ListShape = iota + 1 // [...]
	ListPaginated                      // {"count", "next", "previous", "results"}
)

func (s ListShape) String() string {
	switch s {
	case ListBare:
		return "bare"
	case ListPaginated:
		return "paginated"
	default:
		return "unknown"
	}
}

// Page is one decoded list response. Next and Previous are empty for bare
// arrays.
type Page[T any] struct {
	Shape    ListShape
	Items    []T
	Count    int
	Next     string
	Previous string
}

type envelope[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// NormalizeList decodes a list body in either encoding. An empty body or
// JSON null decodes to an empty bare list.
func NormalizeList[T any](data []byte) (Page[T], error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Page[T]{Shape: ListBare}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return Page[T]{Shape: ListBare, Items: items, Count: len(items)}, nil

	case '{':
		var env envelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Page[T]{}, fmt.Errorf("decode paginated list: %w", err)
		}
		page := Page[T]{Shape: ListPaginated, Items: env.Results, Count: env.Count}
		if env.Next != nil {
			page.Next = *env.Next
		}
		if env.Previous != nil {
			page.Previous = *env.Previous
		}
		return page, nil

	default:
		return Page[T]{}, fmt.Errorf("decode list: unexpected %q", trimmed[0])
	}
}

// listAll fetches path and follows "next" links up to MaxPages pages.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	maxPages := c.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var all []T
	next := c.url(path, query)
	for page := 0; next != "" && page < maxPages; page++ {
		data, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		p, err := NormalizeList[T](data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, p.Items...)
		next = ""
		if p.Next != "" {
			if next, err = c.nextURL(p.Next); err != nil {
				return nil, err
			}
		}
	}
	return all, nil
}
