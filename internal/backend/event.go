package backend

import (
	"fmt"
	"time"
)

// Action is the mutation a realtime event reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// RawEvent is a realtime payload as it arrives from the transport. Payload is
// the flattened document (see Document.Map).
type RawEvent struct {
	ID        string
	Events    []string
	Channels  []string
	Timestamp time.Time
	Payload   map[string]any
}

// CollectionChannel is the channel carrying every event of a collection.
func CollectionChannel(collection string) string {
	return fmt.Sprintf("collections.%s.documents", collection)
}

// DocumentChannel is the channel carrying events of a single document.
func DocumentChannel(collection, id string) string {
	return fmt.Sprintf("collections.%s.documents.%s", collection, id)
}

// ConversationChannel carries events of the documents of a collection that
// belong to one conversation (their conversationId attribute).
func ConversationChannel(collection, conversationID string) string {
	return fmt.Sprintf("collections.%s.conversations.%s", collection, conversationID)
}

// EventChannels lists every channel an event about d is published on.
func EventChannels(d Document) []string {
	channels := []string{CollectionChannel(d.Collection), DocumentChannel(d.Collection, d.ID)}
	if conv, ok := d.Data["conversationId"].(string); ok && conv != "" {
		channels = append(channels, ConversationChannel(d.Collection, conv))
	}
	return channels
}

// EventName names a mutation of one document.
func EventName(collection, id string, action Action) string {
	return fmt.Sprintf("collections.%s.documents.%s.%s", collection, id, action)
}
