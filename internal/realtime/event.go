// Package realtime turns raw push payloads into typed events and keeps
// subscriptions alive across transport failures.
package realtime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
)

// ErrUnrecognized is returned for payloads that do not describe a document
// mutation.
var ErrUnrecognized = errors.New("unrecognized realtime event")

// Kind is the mutation an Event reports.
type Kind int

const (
	Create Kind = iota + 1
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is a parsed document mutation.
type Event struct {
	Kind       Kind
	Collection string
	Document   backend.Document
	At         time.Time
}

// Parse maps a raw event to exactly one Event. The first event name of the
// form collections.<c>.documents.<id>.<action> decides the kind.
func Parse(raw backend.RawEvent) (Event, error) {
	for _, name := range raw.Events {
		collection, id, kind, ok := parseName(name)
		if !ok {
			continue
		}
		doc := backend.DocumentFromMap(raw.Payload)
		if doc.ID == "" {
			doc.ID = id
		}
		if doc.ID != id {
			return Event{}, fmt.Errorf("%w: payload id %q does not match %s", ErrUnrecognized, doc.ID, name)
		}
		doc.Collection = collection
		return Event{Kind: kind, Collection: collection, Document: doc, At: raw.Timestamp}, nil
	}
	return Event{}, fmt.Errorf("%w: %v", ErrUnrecognized, raw.Events)
}

func parseName(name string) (collection, id string, kind Kind, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 5 || parts[0] != "collections" || parts[2] != "documents" {
		return "", "", 0, false
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", 0, false
	}
	switch backend.Action(parts[4]) {
	case backend.ActionCreate:
		kind = Create
	case backend.ActionUpdate:
		kind = Update
	case backend.ActionDelete:
		kind = Delete
	default:
		return "", "", 0, false
	}
	return parts[1], parts[3], kind, true
}
