package chat

import (
	"cmp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/backend"
)

// RoleClient is the role of marketplace clients. Every other role is on the
// owner/internal side.
const RoleClient = "client"

// Viewer is the signed-in identity.
type Viewer struct {
	UserID        string
	Name          string
	Role          string
	EmailVerified bool
}

// Participant is one end of a conversation.
type Participant struct {
	UserID string
	Name   string
}

// Subject is the listing a conversation is about.
type Subject struct {
	ID    string
	Title string
}

// Status of a conversation. Any status may move to any other.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusClosed   Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusClosed:
		return true
	}
	return false
}

// Conversation is a thread between a client and an owner about a subject.
type Conversation struct {
	ID            string
	ClientUserID  string
	ClientName    string
	OwnerUserID   string
	OwnerName     string
	ResourceID    string
	ResourceTitle string
	LastMessage   string
	LastMessageAt string
	ClientUnread  int
	OwnerUnread   int
	Status        Status
	CreatedAt     string
	UpdatedAt     string
}

// Involves reports whether userID is a participant.
func (c Conversation) Involves(userID string) bool {
	return userID != "" && (c.ClientUserID == userID || c.OwnerUserID == userID)
}

// Side is which participant slot a viewer occupies.
type Side int

const (
	SideUnknown Side = iota
	SideClient
	SideOwner
)

func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideOwner:
		return "owner"
	}
	return "unknown"
}

// ResolveSide matches the viewer id against both participants and falls back
// to the viewer's role when neither matches.
func ResolveSide(c Conversation, v Viewer) Side {
	switch {
	case v.UserID != "" && v.UserID == c.ClientUserID:
		return SideClient
	case v.UserID != "" && v.UserID == c.OwnerUserID:
		return SideOwner
	case v.Role == RoleClient:
		return SideClient
	case v.Role != "":
		return SideOwner
	}
	return SideUnknown
}

// Unread returns the unread counter that belongs to the viewer's side.
func Unread(c Conversation, v Viewer) int {
	switch ResolveSide(c, v) {
	case SideClient:
		return c.ClientUnread
	case SideOwner:
		return c.OwnerUnread
	}
	return 0
}

func unreadField(side Side) string {
	switch side {
	case SideClient:
		return "clientUnread"
	case SideOwner:
		return "ownerUnread"
	}
	return ""
}

func counterpart(side Side) Side {
	switch side {
	case SideClient:
		return SideOwner
	case SideOwner:
		return SideClient
	}
	return SideUnknown
}

// Other returns the participant across from the viewer.
func Other(c Conversation, v Viewer) Participant {
	if ResolveSide(c, v) == SideOwner {
		return Participant{UserID: c.ClientUserID, Name: c.ClientName}
	}
	return Participant{UserID: c.OwnerUserID, Name: c.OwnerName}
}

func setUnread(c *Conversation, side Side, n int) {
	switch side {
	case SideClient:
		c.ClientUnread = n
	case SideOwner:
		c.OwnerUnread = n
	}
}

// PreviewLimit is the number of runes kept in a conversation preview.
const PreviewLimit = 120

// Preview shortens body for the conversation list.
func Preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= PreviewLimit {
		return body
	}
	return string([]rune(body)[:PreviewLimit]) + "..."
}

var conversationNamespace = uuid.MustParse("6f1c7d3e-2b0a-4e57-9a53-8c1f0d2e4b71")

// ConversationID derives the id of the conversation between client and
// owner about subject. Racing creators therefore collide on one document.
func ConversationID(clientUserID, ownerUserID, subjectID string) string {
	key := clientUserID + "\x00" + ownerUserID + "\x00" + subjectID
	return uuid.NewSHA1(conversationNamespace, []byte(key)).String()
}

func newConversationData(v Viewer, owner Participant, subject Subject) map[string]any {
	return map[string]any{
		"clientUserId":  v.UserID,
		"clientName":    v.Name,
		"ownerUserId":   owner.UserID,
		"ownerName":     owner.Name,
		"resourceId":    subject.ID,
		"resourceTitle": subject.Title,
		"lastMessage":   "",
		"lastMessageAt": "",
		"clientUnread":  0,
		"ownerUnread":   0,
		"status":        string(StatusActive),
	}
}

// conversationFromDocument decodes d.
func conversationFromDocument(d backend.Document) Conversation {
	return mergeConversation(Conversation{}, d)
}

// mergeConversation overlays the attributes present in d onto c.
func mergeConversation(c Conversation, d backend.Document) Conversation {
	if d.ID != "" {
		c.ID = d.ID
	}
	if !d.CreatedAt.IsZero() {
		c.CreatedAt = backend.FormatTime(d.CreatedAt)
	}
	if !d.UpdatedAt.IsZero() {
		c.UpdatedAt = backend.FormatTime(d.UpdatedAt)
	}
	m := d.Data
	setString(m, "clientUserId", &c.ClientUserID)
	setString(m, "clientName", &c.ClientName)
	setString(m, "ownerUserId", &c.OwnerUserID)
	setString(m, "ownerName", &c.OwnerName)
	setString(m, "propertyId", &c.ResourceID)
	setString(m, "resourceId", &c.ResourceID)
	setString(m, "propertyTitle", &c.ResourceTitle)
	setString(m, "resourceTitle", &c.ResourceTitle)
	setString(m, "lastMessage", &c.LastMessage)
	setString(m, "lastMessageAt", &c.LastMessageAt)
	setInt(m, "clientUnread", &c.ClientUnread)
	setInt(m, "ownerUnread", &c.OwnerUnread)
	if s, ok := m["status"].(string); ok {
		c.Status = Status(s)
	}
	return c
}

func setString(m map[string]any, key string, dst *string) {
	if v, ok := m[key]; ok {
		s, _ := v.(string)
		*dst = s
	}
}

func setInt(m map[string]any, key string, dst *int) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch n := v.(type) {
	case float64:
		*dst = int(n)
	case int:
		*dst = n
	case int64:
		*dst = int(n)
	default:
		*dst = 0
	}
	if *dst < 0 {
		*dst = 0
	}
}

// compareConversations orders by last activity, newest first, then by
// creation time, newest first, then by id.
func compareConversations(a, b Conversation) int {
	if c := backend.ParseTime(b.LastMessageAt).Compare(backend.ParseTime(a.LastMessageAt)); c != 0 {
		return c
	}
	if c := backend.ParseTime(b.CreatedAt).Compare(backend.ParseTime(a.CreatedAt)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func formatNow(now func() time.Time) string {
	return backend.FormatTime(now())
}
