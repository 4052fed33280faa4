package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/status"
	"go.uber.org/zap"
)

// StreamOptions configures a MessageStream.
type StreamOptions struct {
	Collection string
	Notifier   backend.Notifier
	Effects    Dispatcher
	Activity   ActivityObserver
	Machine    *status.Machine
	Logger     *zap.Logger
}

// MessageStream holds the ordered messages of the one active conversation
// and keeps exactly one realtime subscription for it.
type MessageStream struct {
	docs   backend.Documents
	rt     backend.Realtime
	opts   StreamOptions
	logger *zap.Logger
	slot   realtime.Slot

	mu        sync.Mutex
	convID    string
	msgs      []Message
	loading   bool
	loadToken uint64
	viewerID  string
	onInbound func(Message)

	changed chan struct{}
}

// NewMessageStream creates an idle stream. rt may be nil, in which case
// messages only change through Load.
func NewMessageStream(docs backend.Documents, rt backend.Realtime, opts StreamOptions) *MessageStream {
	if opts.Collection == "" {
		opts.Collection = "messages"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageStream{
		docs:    docs,
		rt:      rt,
		opts:    opts,
		logger:  logger.With(zap.String("collection", opts.Collection)),
		changed: make(chan struct{}, 1),
	}
}

// Changed receives a value after any change. Signals coalesce.
func (s *MessageStream) Changed() <-chan struct{} {
	return s.changed
}

func (s *MessageStream) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// SetViewer sets whose messages count as own.
func (s *MessageStream) SetViewer(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewerID = userID
}

// OnInbound registers a hook for messages from other participants.
func (s *MessageStream) OnInbound(fn func(Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInbound = fn
}

// ConversationID returns the id of the conversation being streamed.
func (s *MessageStream) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

// Messages returns a copy of the current list.
func (s *MessageStream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.msgs)
}

// Loading reports whether a load is in flight.
func (s *MessageStream) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribed reports whether a realtime subscription is held.
func (s *MessageStream) Subscribed() bool {
	return s.slot.Active()
}

// Switch makes id the streamed conversation: the previous subscription is
// disposed, a new one is opened and the history is loaded.
func (s *MessageStream) Switch(ctx context.Context, id string) error {
	s.mu.Lock()
	s.convID = id
	s.msgs = nil
	s.loadToken++
	s.mu.Unlock()
	s.signal()

	if s.rt != nil {
		subCtx := context.WithoutCancel(ctx)
		s.slot.Replace(func(gen uint64) realtime.Closer {
			return realtime.Start(subCtx, s.rt, realtime.Options{
				Channels: []string{backend.ConversationChannel(s.opts.Collection, id)},
				OnEvent:  func(evt realtime.Event) { s.handleEvent(gen, evt) },
				OnResync: func() {
					if s.slot.Current(gen) {
						_ = s.Reload(subCtx)
					}
				},
				Machine: s.opts.Machine,
				Logger:  s.logger.With(zap.String("conversation_id", id)),
			})
		})
	}
	return s.Load(ctx, id)
}

// Load replaces the list with the stored history of id, ascending by
// creation time. A load superseded by a newer Load or Switch is discarded.
// On failure the previous list is kept.
func (s *MessageStream) Load(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.convID != id {
		s.convID = id
		s.msgs = nil
	}
	s.loadToken++
	tok := s.loadToken
	s.loading = true
	s.mu.Unlock()
	s.signal()

	docs, err := s.docs.List(ctx, s.opts.Collection, backend.Query{
		Equal:   []backend.Filter{backend.Eq("conversationId", id)},
		OrderBy: backend.AttrCreatedAt,
	})

	s.mu.Lock()
	if tok != s.loadToken {
		s.mu.Unlock()
		s.logger.Debug("discarding stale message load", zap.String("conversation_id", id))
		return nil
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.signal()
		s.logger.Warn("load messages failed", zap.String("conversation_id", id), zap.Error(err))
		return fmt.Errorf("load messages: %w", err)
	}
	if s.convID != id {
		s.mu.Unlock()
		return nil
	}
	loaded := make([]Message, 0, len(docs))
	for _, d := range docs {
		loaded = insertSorted(loaded, messageFromDocument(d))
	}
	// Keep messages that arrived through realtime after the query ran.
	if len(loaded) > 0 {
		newest := loaded[len(loaded)-1]
		for _, m := range s.msgs {
			if compareMessages(m, newest) > 0 {
				loaded = insertSorted(loaded, m)
			}
		}
	} else {
		for _, m := range s.msgs {
			loaded = insertSorted(loaded, m)
		}
	}
	s.msgs = loaded
	s.mu.Unlock()
	s.signal()
	return nil
}

// Reload loads the current conversation again.
func (s *MessageStream) Reload(ctx context.Context) error {
	id := s.ConversationID()
	if id == "" {
		return nil
	}
	return s.Load(ctx, id)
}

// Send stores a message. The message is not added to the list; it appears
// once its realtime event arrives or on the next load.
func (s *MessageStream) Send(ctx context.Context, conversationID string, sender Viewer, body string, kind Kind, payload map[string]any) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyBody
	}
	if conversationID == "" {
		return Message{}, ErrNoActiveConversation
	}
	if kind == "" {
		kind = KindText
	}
	d, err := s.docs.Create(ctx, s.opts.Collection, "", messageData(conversationID, sender, body, kind, payload))
	if err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	return messageFromDocument(d), nil
}

// Reset disposes the subscription and clears the list.
func (s *MessageStream) Reset() {
	s.slot.Dispose()
	s.mu.Lock()
	s.convID = ""
	s.msgs = nil
	s.loading = false
	s.loadToken++
	s.mu.Unlock()
	s.signal()
}

func (s *MessageStream) handleEvent(gen uint64, evt realtime.Event) {
	if !s.slot.Current(gen) || evt.Collection != s.opts.Collection {
		return
	}
	msg := messageFromDocument(evt.Document)

	s.mu.Lock()
	if msg.ConversationID != s.convID {
		s.mu.Unlock()
		return
	}
	idx := slices.IndexFunc(s.msgs, func(m Message) bool { return m.ID == msg.ID })
	switch evt.Kind {
	case realtime.Create:
		if idx >= 0 {
			s.mu.Unlock()
			return
		}
		s.msgs = insertSorted(s.msgs, msg)
	case realtime.Delete:
		if idx < 0 {
			s.mu.Unlock()
			return
		}
		s.msgs = slices.Delete(s.msgs, idx, idx+1)
		s.mu.Unlock()
		s.signal()
		return
	default:
		s.mu.Unlock()
		return
	}
	viewerID, hook := s.viewerID, s.onInbound
	s.mu.Unlock()
	s.signal()

	if viewerID == "" || msg.SenderUserID == viewerID {
		return
	}
	s.inbound(msg, hook)
}

func (s *MessageStream) inbound(msg Message, hook func(Message)) {
	if n := s.opts.Notifier; n != nil {
		note := backend.Notification{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			SenderName:     msg.SenderName,
			Preview:        Preview(msg.Body),
		}
		runEffect(s.opts.Effects, s.logger, "notify", func(ctx context.Context) error {
			n.Notify(ctx, note)
			return nil
		})
	}
	if a := s.opts.Activity; a != nil {
		if at := backend.ParseTime(msg.CreatedAt); !at.IsZero() {
			a.ObserveActivity(msg.SenderUserID, at)
		}
	}
	if hook != nil {
		hook(msg)
	}
}

// insertSorted adds m in order. An entry with the same id is kept as is.
func insertSorted(msgs []Message, m Message) []Message {
	if slices.ContainsFunc(msgs, func(x Message) bool { return x.ID == m.ID }) {
		return msgs
	}
	i, _ := slices.BinarySearchFunc(msgs, m, compareMessages)
	return slices.Insert(msgs, i, m)
}
