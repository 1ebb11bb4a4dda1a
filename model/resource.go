package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Resource is a list entry owned by a controller. Only the identifier and
// the patchable subset of fields matter to the controller; everything else
// is read-only display data. Implementations use pointer receivers so that
// ApplyPatch mutates the entry in place; Clone returns a shallow copy of the
// same dynamic type so that owners can patch without disturbing readers of
// an earlier snapshot.
type Resource interface {
	ResourceID() string
	ApplyPatch(p Patch) error
	Clone() Resource
}

// Patch maps JSON field names to their new values.
type Patch map[string]any

// Fields returns the patch's field names.
func (p Patch) Fields() []string {
	fields := make([]string, 0, len(p))
	for k := range p {
		fields = append(fields, k)
	}
	return fields
}

// MergePatch overlays p onto dst using dst's JSON field names. Fields not
// named in p are left untouched. dst must be a pointer.
func MergePatch(dst any, p Patch) error {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("patch: encode: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("patch: apply: %w", err)
	}
	return nil
}

// Page is one decoded list response from the backend.
type Page[T any] struct {
	Items      []T
	TotalCount int
	// TotalPages as reported by the server; zero when not reported.
	TotalPages int
	// Meta holds additional top-level fields of the response data object,
	// e.g. aggregate counters that some list endpoints return.
	Meta map[string]json.RawMessage
}

// SyncMessage is the only payload carried by a sync topic.
type SyncMessage struct {
	Topic      string    `json:"topic"`
	ResourceID string    `json:"resourceId"`
	Patch      Patch     `json:"patch"`
	Origin     string    `json:"origin"`
	SentAt     time.Time `json:"sentAt"`
}
