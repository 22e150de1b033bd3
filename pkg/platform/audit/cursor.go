package audit

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	dErrors "guardrail/pkg/domain-errors"
)

// Cursor is the keyset position of an entry: (timestamp, seq).
type Cursor struct {
	Timestamp time.Time
	Seq       int64
}

// After reports whether e sorts strictly after the cursor.
func (c Cursor) After(e Entry) bool {
	if e.Timestamp.Equal(c.Timestamp) {
		return e.Seq > c.Seq
	}
	return e.Timestamp.After(c.Timestamp)
}

// CursorOf returns the opaque cursor that resumes a query after e.
func CursorOf(e Entry) string {
	raw := strconv.FormatInt(e.Timestamp.UnixNano(), 10) + ":" + strconv.FormatInt(e.Seq, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes an opaque cursor. The empty cursor is the start.
func ParseCursor(s string) (Cursor, bool, error) {
	if s == "" {
		return Cursor{}, false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, false, dErrors.New(dErrors.CodeInvalidInput, "invalid cursor")
	}
	tsPart, seqPart, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Cursor{}, false, dErrors.New(dErrors.CodeInvalidInput, "invalid cursor")
	}
	nanos, err1 := strconv.ParseInt(tsPart, 10, 64)
	seq, err2 := strconv.ParseInt(seqPart, 10, 64)
	if err1 != nil || err2 != nil {
		return Cursor{}, false, dErrors.New(dErrors.CodeInvalidInput, "invalid cursor")
	}
	return Cursor{Timestamp: time.Unix(0, nanos).UTC(), Seq: seq}, true, nil
}

// Querier is the read side of a Store.
type Querier interface {
	Query(ctx context.Context, filter Filter, page PageRequest) (Page, error)
}

// Entries returns a lazy sequence over every entry matching filter, fetched a
// page at a time starting after cursor. Iteration stops at the first error,
// which is yielded once. Restart by passing CursorOf(lastSeen).
func Entries(ctx context.Context, q Querier, filter Filter, cursor string, pageSize int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		next := cursor
		for {
			page, err := q.Query(ctx, filter, PageRequest{Cursor: next, Limit: pageSize})
			if err != nil {
				yield(Entry{}, fmt.Errorf("query audit page: %w", err))
				return
			}
			for _, e := range page.Entries {
				if !yield(e, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			next = page.NextCursor
		}
	}
}
