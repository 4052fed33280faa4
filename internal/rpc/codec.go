package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/rentchat/internal/backend"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var errMalformed = errors.New("malformed message")

// Encode converts an arbitrary JSON-compatible map into a Struct. Values go
// through encoding/json first so typed slices and maps are accepted.
func Encode(m map[string]any) (*structpb.Struct, error) {
	if m == nil {
		return &structpb.Struct{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return s, nil
}

// Decode converts a Struct back into a plain map. Numbers come back as
// float64.
func Decode(s *structpb.Struct) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s.AsMap()
}

// EncodeDocument flattens a document onto the wire.
func EncodeDocument(d backend.Document) (*structpb.Struct, error) {
	return Encode(d.Map())
}

// DecodeDocument is the inverse of EncodeDocument.
func DecodeDocument(s *structpb.Struct) (backend.Document, error) {
	d := backend.DocumentFromMap(Decode(s))
	if d.ID == "" || d.Collection == "" {
		return backend.Document{}, fmt.Errorf("%w: document without id", errMalformed)
	}
	return d, nil
}

// EncodeDocuments wraps a list of documents.
func EncodeDocuments(docs []backend.Document) (*structpb.Struct, error) {
	list := make([]any, 0, len(docs))
	for _, d := range docs {
		list = append(list, d.Map())
	}
	return Encode(map[string]any{"documents": list})
}

// DecodeDocuments is the inverse of EncodeDocuments.
func DecodeDocuments(s *structpb.Struct) ([]backend.Document, error) {
	items, _ := Decode(s)["documents"].([]any)
	docs := make([]backend.Document, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: document entry %T", errMalformed, it)
		}
		d := backend.DocumentFromMap(m)
		if d.ID == "" {
			return nil, fmt.Errorf("%w: document without id", errMalformed)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// EncodeQuery builds a List request.
func EncodeQuery(collection string, q backend.Query) (*structpb.Struct, error) {
	return Encode(map[string]any{
		"collection": collection,
		"equal":      encodeFilters(q.Equal),
		"any":        encodeFilters(q.Any),
		"orderBy":    q.OrderBy,
		"desc":       q.Desc,
		"limit":      q.Limit,
		"offset":     q.Offset,
	})
}

// DecodeQuery parses a List request.
func DecodeQuery(s *structpb.Struct) (string, backend.Query, error) {
	m := Decode(s)
	equal, err := decodeFilters(m["equal"])
	if err != nil {
		return "", backend.Query{}, err
	}
	anyOf, err := decodeFilters(m["any"])
	if err != nil {
		return "", backend.Query{}, err
	}
	q := backend.Query{
		Equal:   equal,
		Any:     anyOf,
		OrderBy: String(m, "orderBy"),
		Desc:    Bool(m, "desc"),
		Limit:   int(Int(m, "limit")),
		Offset:  int(Int(m, "offset")),
	}
	return String(m, "collection"), q, nil
}

func encodeFilters(fs []backend.Filter) []any {
	out := make([]any, 0, len(fs))
	for _, f := range fs {
		out = append(out, map[string]any{"field": f.Field, "value": f.Value})
	}
	return out
}

func decodeFilters(v any) ([]backend.Filter, error) {
	items, _ := v.([]any)
	out := make([]backend.Filter, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: filter %T", errMalformed, it)
		}
		out = append(out, backend.Filter{Field: String(m, "field"), Value: m["value"]})
	}
	return out, nil
}

// EncodeIncrements renders counter deltas for an Update request.
func EncodeIncrements(incr map[string]int64) map[string]any {
	out := make(map[string]any, len(incr))
	for k, v := range incr {
		out[k] = v
	}
	return out
}

// DecodeIncrements parses counter deltas. Fractional deltas are rejected.
func DecodeIncrements(v any) (map[string]int64, error) {
	m, _ := v.(map[string]any)
	out := make(map[string]int64, len(m))
	for k, raw := range m {
		f, ok := raw.(float64)
		if !ok || f != float64(int64(f)) {
			return nil, fmt.Errorf("%w: increment %q", backend.ErrInvalidQuery, k)
		}
		out[k] = int64(f)
	}
	return out, nil
}

// EncodeEvent renders a realtime event for the Subscribe stream.
func EncodeEvent(e backend.RawEvent) (*structpb.Struct, error) {
	return Encode(map[string]any{
		"id":        e.ID,
		"events":    e.Events,
		"channels":  e.Channels,
		"timestamp": backend.FormatTime(e.Timestamp),
		"payload":   e.Payload,
	})
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(s *structpb.Struct) backend.RawEvent {
	m := Decode(s)
	payload, _ := m["payload"].(map[string]any)
	return backend.RawEvent{
		ID:        String(m, "id"),
		Events:    Strings(m, "events"),
		Channels:  Strings(m, "channels"),
		Timestamp: backend.ParseTime(String(m, "timestamp")),
		Payload:   payload,
	}
}

// String reads a string field, "" when absent or of another type.
func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool reads a bool field.
func Bool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Int reads a numeric field as int64.
func Int(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// Strings reads a list of strings, skipping non-string entries.
func Strings(m map[string]any, key string) []string {
	items, _ := m[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Channels sorts and dedupes channel names for a Subscribe request.
func Channels(channels []string) []string {
	out := slices.Clone(channels)
	slices.Sort(out)
	out = slices.Compact(out)
	return slices.DeleteFunc(out, func(c string) bool { return strings.TrimSpace(c) == "" })
}
