package backend

import (
	"fmt"
	"regexp"
)

// Filter matches documents whose attribute Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Query selects documents. Equal filters are ANDed; when Any is non-empty at
// least one of its filters must also match.
type Query struct {
	Equal   []Filter
	Any     []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

var fieldRegexp = regexp.MustCompile(`^\$?[A-Za-z][A-Za-z0-9_]{0,63}$`)

// ValidField reports whether name can be used as an attribute name in
// queries and counter increments.
func ValidField(name string) bool {
	return fieldRegexp.MatchString(name)
}

// Validate rejects attribute names that cannot be addressed safely.
func (q Query) Validate() error {
	for _, f := range append(append([]Filter{}, q.Equal...), q.Any...) {
		if !fieldRegexp.MatchString(f.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
		switch f.Value.(type) {
		case string, bool, int, int64, float64:
		default:
			return fmt.Errorf("%w: unsupported value %T for %q", ErrInvalidQuery, f.Value, f.Field)
		}
	}
	if q.OrderBy != "" && !fieldRegexp.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: order field %q", ErrInvalidQuery, q.OrderBy)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}
	return nil
}
