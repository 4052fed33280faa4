// Package chat keeps the viewer's conversations and the messages of the
// open conversation synchronized with the document store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/status"
	"go.uber.org/zap"
)

// ActiveConversationKey is the storage key holding the open conversation.
const ActiveConversationKey = "activeConversationId"

// Options configures Conversations.
type Options struct {
	Collection string
	Effects    Dispatcher
	Machine    *status.Machine
	Logger     *zap.Logger
	Now        func() time.Time
}

// Conversations is the viewer's conversation list plus the pointer to the
// open conversation, whose messages live in the MessageStream.
type Conversations struct {
	docs    backend.Documents
	rt      backend.Realtime
	storage backend.Storage
	stream  *MessageStream
	opts    Options
	logger  *zap.Logger
	slot    realtime.Slot

	mu       sync.Mutex
	viewer   *Viewer
	epoch    uint64
	convs    []Conversation
	activeID string
	loading  bool
	loaded   bool
	decided  bool
	inflight map[string]struct{}

	changed chan struct{}
}

// NewConversations wires a store to its message stream. rt may be nil.
func NewConversations(docs backend.Documents, rt backend.Realtime, storage backend.Storage, stream *MessageStream, opts Options) *Conversations {
	if opts.Collection == "" {
		opts.Collection = "conversations"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conversations{
		docs:     docs,
		rt:       rt,
		storage:  storage,
		stream:   stream,
		opts:     opts,
		logger:   logger.With(zap.String("collection", opts.Collection)),
		inflight: make(map[string]struct{}),
		changed:  make(chan struct{}, 1),
	}
	stream.OnInbound(c.markRead)
	return c
}

// Changed receives a value after any change. Signals coalesce.
func (c *Conversations) Changed() <-chan struct{} {
	return c.changed
}

func (c *Conversations) signal() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Stream returns the message stream of the open conversation.
func (c *Conversations) Stream() *MessageStream {
	return c.stream
}

// Viewer returns the signed-in identity.
func (c *Conversations) Viewer() (Viewer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewer == nil {
		return Viewer{}, false
	}
	return *c.viewer, true
}

// All returns the conversations in display order.
func (c *Conversations) All() []Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.convs)
}

// Get returns a locally known conversation.
func (c *Conversations) Get(id string) (Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 {
		return Conversation{}, false
	}
	return c.convs[i], true
}

// ActiveID returns the open conversation id, or "".
func (c *Conversations) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Active returns the open conversation.
func (c *Conversations) Active() (Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(c.activeID)
	if i < 0 {
		return Conversation{}, false
	}
	return c.convs[i], true
}

// Loading reports whether a list load is in flight.
func (c *Conversations) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Unread returns the viewer's unread count for id.
func (c *Conversations) Unread(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 || c.viewer == nil {
		return 0
	}
	return Unread(c.convs[i], *c.viewer)
}

// TotalUnread sums the viewer's unread counts.
func (c *Conversations) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewer == nil {
		return 0
	}
	n := 0
	for _, conv := range c.convs {
		n += Unread(conv, *c.viewer)
	}
	return n
}

func (c *Conversations) index(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(c.convs, func(conv Conversation) bool { return conv.ID == id })
}

func (c *Conversations) upsertLocked(conv Conversation) {
	if i := c.index(conv.ID); i >= 0 {
		c.convs[i] = conv
	} else {
		c.convs = append(c.convs, conv)
	}
	slices.SortFunc(c.convs, compareConversations)
}

// SetViewer installs the signed-in identity. Switching to another user
// logs the previous one out first.
func (c *Conversations) SetViewer(ctx context.Context, v Viewer) {
	c.mu.Lock()
	prev := c.viewer
	c.mu.Unlock()
	if prev != nil && prev.UserID == v.UserID {
		c.mu.Lock()
		c.viewer = &v
		c.mu.Unlock()
		return
	}
	if prev != nil {
		c.Logout()
	}

	c.mu.Lock()
	c.viewer = &v
	c.epoch++
	c.mu.Unlock()
	c.stream.SetViewer(v.UserID)
	c.logger.Info("viewer set", zap.String("user_id", v.UserID), zap.String("role", v.Role))
	c.signal()
	c.restore(ctx)
}

// Start subscribes to conversation changes and loads the list.
func (c *Conversations) Start(ctx context.Context) error {
	if _, ok := c.Viewer(); !ok {
		return ErrNoViewer
	}
	if c.rt != nil {
		subCtx := context.WithoutCancel(ctx)
		c.slot.Replace(func(gen uint64) realtime.Closer {
			return realtime.Start(subCtx, c.rt, realtime.Options{
				Channels: []string{backend.CollectionChannel(c.opts.Collection)},
				OnEvent:  func(evt realtime.Event) { c.handleEvent(gen, evt) },
				OnResync: func() {
					if c.slot.Current(gen) {
						c.resync(subCtx)
					}
				},
				Machine: c.opts.Machine,
				Logger:  c.logger,
			})
		})
	}
	return c.Load(ctx)
}

// Stop disposes every subscription and keeps local state.
func (c *Conversations) Stop() {
	c.slot.Dispose()
	c.stream.Reset()
}

func (c *Conversations) resync(ctx context.Context) {
	if err := c.Load(ctx); err != nil {
		return
	}
	if err := c.stream.Reload(ctx); err != nil {
		c.logger.Warn("reload messages after reconnect failed", zap.Error(err))
	}
}

// List fetches every conversation the viewer takes part in, in display
// order.
func (c *Conversations) List(ctx context.Context) ([]Conversation, error) {
	v, ok := c.Viewer()
	if !ok {
		return nil, ErrNoViewer
	}
	docs, err := c.docs.List(ctx, c.opts.Collection, backend.Query{
		Any: []backend.Filter{
			backend.Eq("clientUserId", v.UserID),
			backend.Eq("ownerUserId", v.UserID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs := make([]Conversation, 0, len(docs))
	for _, d := range docs {
		convs = append(convs, conversationFromDocument(d))
	}
	slices.SortFunc(convs, compareConversations)
	return convs, nil
}

// Load replaces the local list. On failure the previous list is kept. The
// open conversation is closed when the new list no longer contains it.
func (c *Conversations) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.viewer == nil {
		c.mu.Unlock()
		return ErrNoViewer
	}
	epoch := c.epoch
	c.loading = true
	c.mu.Unlock()
	c.signal()

	convs, err := c.List(ctx)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		c.signal()
		c.logger.Warn("load conversations failed", zap.Error(err))
		return err
	}
	c.convs = convs
	c.loaded = true
	stale := c.activeID != "" && c.index(c.activeID) < 0
	c.mu.Unlock()

	c.logger.Debug("conversations loaded", zap.Int("count", len(convs)))
	if stale {
		c.clearActive("active conversation no longer listed")
	}
	c.signal()
	c.restore(ctx)
	return nil
}

// restore reopens the persisted conversation once both the viewer and a
// loaded list are known, or forgets it when the list does not have it.
func (c *Conversations) restore(ctx context.Context) {
	c.mu.Lock()
	if c.viewer == nil || !c.loaded || c.decided {
		c.mu.Unlock()
		return
	}
	c.decided = true
	active := c.activeID
	c.mu.Unlock()
	if active != "" {
		return
	}

	id, ok, err := c.storage.Get(ActiveConversationKey)
	if err != nil {
		c.logger.Warn("read active conversation failed", zap.Error(err))
		return
	}
	if !ok || id == "" {
		return
	}
	if _, known := c.Get(id); !known {
		c.logger.Info("discarding persisted conversation", zap.String("conversation_id", id))
		if err := c.storage.Remove(ActiveConversationKey); err != nil {
			c.logger.Warn("clear active conversation failed", zap.Error(err))
		}
		return
	}
	if err := c.Open(ctx, id); err != nil {
		c.logger.Warn("restore conversation failed", zap.String("conversation_id", id), zap.Error(err))
	}
}

// GetOrCreate returns the conversation between the viewer, as client, and
// owner about subject, creating it when needed.
func (c *Conversations) GetOrCreate(ctx context.Context, subject Subject, owner Participant) (Conversation, error) {
	v, ok := c.Viewer()
	if !ok {
		return Conversation{}, ErrNoViewer
	}
	if v.Role != RoleClient {
		return Conversation{}, ErrOnlyClientsMayInitiate
	}
	if !v.EmailVerified {
		return Conversation{}, ErrEmailNotVerified
	}
	if owner.UserID == "" || subject.ID == "" || owner.UserID == v.UserID {
		return Conversation{}, ErrInvalidParticipants
	}

	id := ConversationID(v.UserID, owner.UserID, subject.ID)
	d, err := c.docs.Create(ctx, c.opts.Collection, id, newConversationData(v, owner, subject))
	if errors.Is(err, backend.ErrConflict) {
		d, err = c.docs.Get(ctx, c.opts.Collection, id)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get or create conversation: %w", err)
	}
	conv := conversationFromDocument(d)

	c.mu.Lock()
	if c.index(conv.ID) < 0 {
		c.upsertLocked(conv)
	}
	c.mu.Unlock()
	c.signal()
	return conv, nil
}

// Open makes id the open conversation: it is persisted, its messages are
// streamed and the viewer's unread counter is reset.
func (c *Conversations) Open(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.viewer == nil {
		c.mu.Unlock()
		return ErrNoViewer
	}
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("open %s: %w", id, backend.ErrNotFound)
	}
	c.activeID = id
	c.decided = true
	side := ResolveSide(c.convs[i], *c.viewer)
	setUnread(&c.convs[i], side, 0)
	c.mu.Unlock()
	c.signal()

	if err := c.storage.Set(ActiveConversationKey, id); err != nil {
		c.logger.Warn("persist active conversation failed", zap.Error(err))
	}
	if err := c.stream.Switch(ctx, id); err != nil {
		c.logger.Warn("open conversation load failed", zap.String("conversation_id", id), zap.Error(err))
	}
	if field := unreadField(side); field != "" {
		if _, err := c.docs.Update(ctx, c.opts.Collection, id, map[string]any{field: 0}, nil); err != nil {
			c.logger.Warn("reset unread failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
	return nil
}

// Close clears the open conversation.
func (c *Conversations) Close() {
	c.clearActive("closed")
}

func (c *Conversations) clearActive(reason string) {
	c.mu.Lock()
	id := c.activeID
	c.activeID = ""
	c.mu.Unlock()

	if err := c.storage.Remove(ActiveConversationKey); err != nil {
		c.logger.Warn("clear active conversation failed", zap.Error(err))
	}
	c.stream.Reset()
	if id != "" {
		c.logger.Info("active conversation cleared", zap.String("conversation_id", id), zap.String("reason", reason))
	}
	c.signal()
}

// Send posts a text message to id and updates its preview right away. The
// message itself shows up in the stream once the store echoes it.
func (c *Conversations) Send(ctx context.Context, id, body string) (Message, error) {
	return c.send(ctx, id, body, KindText, nil)
}

// SendProposal posts a proposal with its terms in payload.
func (c *Conversations) SendProposal(ctx context.Context, id, body string, payload map[string]any) (Message, error) {
	return c.send(ctx, id, body, KindProposal, payload)
}

// RespondProposal accepts or declines the proposal message proposalID.
func (c *Conversations) RespondProposal(ctx context.Context, id, proposalID string, accept bool, note string) (Message, error) {
	if strings.TrimSpace(note) == "" {
		note = "Proposal declined"
		if accept {
			note = "Proposal accepted"
		}
	}
	return c.send(ctx, id, note, KindProposalResponse, map[string]any{
		"proposalId": proposalID,
		"accepted":   accept,
	})
}

func (c *Conversations) send(ctx context.Context, id, body string, kind Kind, payload map[string]any) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyBody
	}
	c.mu.Lock()
	if c.viewer == nil {
		c.mu.Unlock()
		return Message{}, ErrNoViewer
	}
	v := *c.viewer
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return Message{}, ErrNoActiveConversation
	}
	side := ResolveSide(c.convs[i], v)
	c.mu.Unlock()

	msg, err := c.stream.Send(ctx, id, v, body, kind, payload)
	if err != nil {
		return Message{}, err
	}

	preview := Preview(body)
	at := msg.CreatedAt
	if at == "" {
		at = formatNow(c.opts.Now)
	}
	c.mu.Lock()
	if i := c.index(id); i >= 0 {
		conv := c.convs[i]
		conv.LastMessage = preview
		conv.LastMessageAt = at
		c.upsertLocked(conv)
	}
	c.mu.Unlock()
	c.signal()

	var incr map[string]int64
	if field := unreadField(counterpart(side)); field != "" {
		incr = map[string]int64{field: 1}
	}
	d, err := c.docs.Update(ctx, c.opts.Collection, id, map[string]any{
		"lastMessage":   preview,
		"lastMessageAt": at,
	}, incr)
	if err != nil {
		c.logger.Warn("update preview failed", zap.String("conversation_id", id), zap.Error(err))
		return msg, nil
	}
	c.mu.Lock()
	if i := c.index(id); i >= 0 {
		c.upsertLocked(mergeConversation(c.convs[i], d))
	}
	c.mu.Unlock()
	c.signal()
	return msg, nil
}

// UpdateStatus moves id to next. Only the owner side may do so. While an
// update for id is in flight, further calls for id return nil and do
// nothing.
func (c *Conversations) UpdateStatus(ctx context.Context, id string, next Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	c.mu.Lock()
	if c.viewer == nil {
		c.mu.Unlock()
		return ErrNoViewer
	}
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("update status %s: %w", id, backend.ErrNotFound)
	}
	if c.viewer.Role == RoleClient || ResolveSide(c.convs[i], *c.viewer) != SideOwner {
		c.mu.Unlock()
		return ErrNotAuthorized
	}
	if _, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		c.logger.Debug("status update already in flight", zap.String("conversation_id", id))
		return nil
	}
	c.inflight[id] = struct{}{}
	c.mu.Unlock()

	d, err := c.docs.Update(ctx, c.opts.Collection, id, map[string]any{"status": string(next)}, nil)

	c.mu.Lock()
	delete(c.inflight, id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("update status: %w", err)
	}
	if i := c.index(id); i >= 0 {
		c.upsertLocked(mergeConversation(c.convs[i], d))
	}
	c.mu.Unlock()
	c.signal()
	return nil
}

// Logout drops the viewer and everything derived from them.
func (c *Conversations) Logout() {
	c.slot.Dispose()
	c.stream.Reset()
	c.stream.SetViewer("")

	c.mu.Lock()
	c.viewer = nil
	c.epoch++
	c.convs = nil
	c.activeID = ""
	c.loading = false
	c.loaded = false
	c.decided = false
	clear(c.inflight)
	c.mu.Unlock()

	if err := c.storage.Remove(ActiveConversationKey); err != nil {
		c.logger.Warn("clear active conversation failed", zap.Error(err))
	}
	c.signal()
}

// markRead runs for messages from other participants in the open
// conversation.
func (c *Conversations) markRead(msg Message) {
	c.mu.Lock()
	i := c.index(msg.ConversationID)
	if c.viewer == nil || i < 0 {
		c.mu.Unlock()
		return
	}
	side := ResolveSide(c.convs[i], *c.viewer)
	field := unreadField(side)
	conv := c.convs[i]
	conv.LastMessage = Preview(msg.Body)
	if backend.ParseTime(msg.CreatedAt).After(backend.ParseTime(conv.LastMessageAt)) {
		conv.LastMessageAt = msg.CreatedAt
	}
	setUnread(&conv, side, 0)
	c.upsertLocked(conv)
	c.mu.Unlock()
	c.signal()

	if field == "" {
		return
	}
	id := msg.ConversationID
	runEffect(c.opts.Effects, c.logger, "mark-read", func(ctx context.Context) error {
		_, err := c.docs.Update(ctx, c.opts.Collection, id, map[string]any{field: 0}, nil)
		return err
	})
}

func (c *Conversations) handleEvent(gen uint64, evt realtime.Event) {
	if !c.slot.Current(gen) || evt.Collection != c.opts.Collection {
		return
	}
	id := evt.Document.ID

	c.mu.Lock()
	if c.viewer == nil {
		c.mu.Unlock()
		return
	}
	i := c.index(id)
	switch evt.Kind {
	case realtime.Create:
		conv := conversationFromDocument(evt.Document)
		if i >= 0 || !conv.Involves(c.viewer.UserID) {
			c.mu.Unlock()
			return
		}
		c.upsertLocked(conv)
		c.mu.Unlock()
	case realtime.Update:
		if i < 0 {
			c.mu.Unlock()
			return
		}
		conv := mergeConversation(c.convs[i], evt.Document)
		// The open conversation's counter stays zero while it is on screen.
		// An increment landing after our reset is cleared again remotely.
		var resetField string
		if id == c.activeID {
			side := ResolveSide(conv, *c.viewer)
			if Unread(conv, *c.viewer) > 0 {
				resetField = unreadField(side)
			}
			setUnread(&conv, side, 0)
		}
		c.upsertLocked(conv)
		c.mu.Unlock()
		if resetField != "" {
			runEffect(c.opts.Effects, c.logger, "mark-read", func(ctx context.Context) error {
				_, err := c.docs.Update(ctx, c.opts.Collection, id, map[string]any{resetField: 0}, nil)
				return err
			})
		}
	case realtime.Delete:
		if i < 0 {
			c.mu.Unlock()
			return
		}
		c.convs = slices.Delete(c.convs, i, i+1)
		wasActive := id == c.activeID
		c.mu.Unlock()
		if wasActive {
			c.clearActive("deleted remotely")
			return
		}
	default:
		c.mu.Unlock()
		return
	}
	c.signal()
}
