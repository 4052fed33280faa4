package backend

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Reserved attribute names carried alongside document data.
const (
	AttrID         = "$id"
	AttrCollection = "$collection"
	AttrCreatedAt  = "$createdAt"
	AttrUpdatedAt  = "$updatedAt"
)

// TimeLayout renders timestamps with fixed-width fractions so that their
// string form sorts chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses an RFC 3339 timestamp. The zero time is returned for
// empty or malformed input.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Document is a schemaless record in a collection.
type Document struct {
	ID         string
	Collection string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Data       map[string]any
}

// Map flattens the document into a single attribute map including the
// reserved $-prefixed attributes.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d.Data)+4)
	maps.Copy(m, d.Data)
	m[AttrID] = d.ID
	m[AttrCollection] = d.Collection
	if !d.CreatedAt.IsZero() {
		m[AttrCreatedAt] = FormatTime(d.CreatedAt)
	}
	if !d.UpdatedAt.IsZero() {
		m[AttrUpdatedAt] = FormatTime(d.UpdatedAt)
	}
	return m
}

// Decode unmarshals the flattened document into v using json tags.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Map())
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// DocumentFromMap is the inverse of Map. Unknown or malformed reserved
// attributes are ignored.
func DocumentFromMap(m map[string]any) Document {
	d := Document{Data: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case AttrID:
			d.ID, _ = v.(string)
		case AttrCollection:
			d.Collection, _ = v.(string)
		case AttrCreatedAt:
			d.CreatedAt = parseTime(v)
		case AttrUpdatedAt:
			d.UpdatedAt = parseTime(v)
		default:
			d.Data[k] = v
		}
	}
	return d
}

func parseTime(v any) time.Time {
	s, _ := v.(string)
	return ParseTime(s)
}
