package chat

import (
	"cmp"
	"strings"

	"github.com/matheus3301/rentchat/internal/backend"
)

// TempPrefix marks ids of messages that have not been stored yet.
const TempPrefix = "temp-"

// Kind of message.
type Kind string

const (
	KindText             Kind = "text"
	KindProposal         Kind = "proposal"
	KindProposalResponse Kind = "proposal_response"
)

// Message is one entry of a conversation. Messages are append-only.
type Message struct {
	ID             string
	ConversationID string
	SenderUserID   string
	SenderName     string
	SenderRole     string
	Body           string
	Kind           Kind
	Payload        map[string]any
	CreatedAt      string
}

// Pending reports whether the message still carries a temporary id.
func (m Message) Pending() bool {
	return strings.HasPrefix(m.ID, TempPrefix)
}

func messageFromDocument(d backend.Document) Message {
	m := Message{ID: d.ID, Kind: KindText}
	setString(d.Data, "conversationId", &m.ConversationID)
	setString(d.Data, "senderUserId", &m.SenderUserID)
	setString(d.Data, "senderName", &m.SenderName)
	setString(d.Data, "senderRole", &m.SenderRole)
	setString(d.Data, "body", &m.Body)
	if k, ok := d.Data["kind"].(string); ok && k != "" {
		m.Kind = Kind(k)
	}
	if p, ok := d.Data["payload"].(map[string]any); ok {
		m.Payload = p
	}
	if !d.CreatedAt.IsZero() {
		m.CreatedAt = backend.FormatTime(d.CreatedAt)
	} else {
		setString(d.Data, "createdAt", &m.CreatedAt)
	}
	return m
}

func messageData(conversationID string, sender Viewer, body string, kind Kind, payload map[string]any) map[string]any {
	data := map[string]any{
		"conversationId": conversationID,
		"senderUserId":   sender.UserID,
		"senderName":     sender.Name,
		"senderRole":     sender.Role,
		"body":           body,
		"kind":           string(kind),
	}
	if payload != nil {
		data["payload"] = payload
	}
	return data
}

// compareMessages orders by creation time, then id.
func compareMessages(a, b Message) int {
	if c := backend.ParseTime(a.CreatedAt).Compare(backend.ParseTime(b.CreatedAt)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Delivery is the display status of a message the viewer sent.
type Delivery string

const (
	DeliveryNone      Delivery = ""
	DeliverySending   Delivery = "sending"
	DeliverySent      Delivery = "sent"
	DeliveryDelivered Delivery = "delivered"
	DeliveryRead      Delivery = "read"
	DeliveryFailed    Delivery = "failed"
)

// DeliveryStatus derives how far an own message got. Messages from other
// participants have no status. Once stored, a message counts as read when
// the counterpart has nothing unread, and as delivered otherwise; without
// the parent conversation it is only known to be sent.
func DeliveryStatus(msg Message, conv Conversation, viewer Viewer) Delivery {
	if msg.SenderUserID != viewer.UserID {
		return DeliveryNone
	}
	if msg.Pending() {
		return DeliverySending
	}
	if conv.ID == "" || conv.ID != msg.ConversationID {
		return DeliverySent
	}
	side := counterpart(ResolveSide(conv, viewer))
	var unread int
	switch side {
	case SideClient:
		unread = conv.ClientUnread
	case SideOwner:
		unread = conv.OwnerUnread
	default:
		return DeliverySent
	}
	if unread == 0 {
		return DeliveryRead
	}
	return DeliveryDelivered
}
