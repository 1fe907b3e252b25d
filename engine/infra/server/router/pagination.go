package router

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

const (
	cursorTag       = "after:"
	fallbackLimit   = 50
	fallbackMaxPage = 500
)

var (
	cursorCodec      = base64.RawURLEncoding
	ErrInvalidCursor = errors.New("invalid cursor")
)

// EncodeCursor turns the last id of a page into an opaque token. An empty id
// means there is no next page.
func EncodeCursor(lastID string) string {
	if lastID == "" {
		return ""
	}
	return cursorCodec.EncodeToString([]byte(cursorTag + lastID))
}

// DecodeCursor returns the id to resume after. Blank input is the first page.
func DecodeCursor(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	data, err := cursorCodec.DecodeString(raw)
	if err != nil {
		return "", ErrInvalidCursor
	}
	id, ok := strings.CutPrefix(string(data), cursorTag)
	if !ok || strings.TrimSpace(id) == "" {
		return "", ErrInvalidCursor
	}
	return id, nil
}

// LimitOrDefault parses a page size, clamping it to [1, maxLimit].
func LimitOrDefault(raw string, def int, maxLimit int) int {
	if def <= 0 {
		def = fallbackLimit
	}
	if maxLimit <= 0 {
		maxLimit = fallbackMaxPage
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil || n <= 0:
		return def
	case n > maxLimit:
		return maxLimit
	default:
		return n
	}
}

// SetNextLink advertises the next page through an RFC 8288 Link header.
func SetNextLink(c *gin.Context, cursor string) {
	if cursor == "" {
		return
	}
	next := *c.Request.URL
	q := next.Query()
	q.Set("cursor", cursor)
	next.RawQuery = q.Encode()
	c.Header("Link", fmt.Sprintf("<%s>; rel=\"next\"", next.RequestURI()))
}
