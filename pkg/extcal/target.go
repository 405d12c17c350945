// Package extcal pushes calendar items to an external calendar keyed by stable ids.
package extcal

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized means the provider rejected the credential; the connection must be renewed.
var ErrUnauthorized = errors.New("extcal: credential rejected")

// Item is one event to upsert. Key is stable across pushes of the same upstream record.
type Item struct {
	Key         string
	Title       string
	Description string
	Location    string
	Category    string
	Color       string
	Start       time.Time
	End         time.Time
	Updated     time.Time
}

// Batch is a push request for one user.
type Batch struct {
	Owner string
	Token string
	Items []Item
}

// Result is the per-item outcome of a push. Err is nil for accepted items.
type Result struct {
	Key string
	Err error
}

// Target is an external calendar accepting upserts by Item.Key.
// Push returns an error only when nothing could be attempted (e.g. ErrUnauthorized).
type Target interface {
	Name() string
	Push(ctx context.Context, batch Batch) ([]Result, error)
}

// Replacer is implemented by targets whose Push replaces everything previously published
// for the owner rather than upserting item by item.
type Replacer interface {
	ReplacesAll() bool
}

// ReplacesAll reports whether a push to t drops items missing from the batch.
func ReplacesAll(t Target) bool {
	r, ok := t.(Replacer)
	return ok && r.ReplacesAll()
}
