// Package pagination implements keyset paging over a unique, ordered key.
// Cursors are opaque to clients; only the last key seen is carried.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

const cursorPrefix = "v1:"

var ErrInvalidCursor = errors.New("invalid cursor")

// Params is one page request.
type Params struct {
	Limit  int
	Cursor string
}

// PageSize is Limit clamped to [1, MaxLimit], with DefaultLimit for zero.
func (p Params) PageSize() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	}
	return p.Limit
}

// FetchSize is one row past the page, so a full page can tell whether
// another follows.
func (p Params) FetchSize() int {
	return p.PageSize() + 1
}

// After decodes the cursor into the last key of the previous page. The
// first page has no cursor and returns "".
func (p Params) After() (string, error) {
	raw := strings.TrimSpace(p.Cursor)
	if raw == "" {
		return "", nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", ErrInvalidCursor
	}
	key, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok || key == "" {
		return "", ErrInvalidCursor
	}
	return key, nil
}

// Cut trims rows fetched with FetchSize down to one page and returns the
// cursor for the next page, or "" on the last one.
func Cut[T any](rows []T, p Params, key func(T) string) ([]T, string) {
	size := p.PageSize()
	if len(rows) <= size {
		return rows, ""
	}
	rows = rows[:size]
	return rows, encode(key(rows[size-1]))
}

func encode(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + key))
}
