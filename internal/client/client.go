// Package client assembles a viewer's chat core on top of a running
// rentchatd: remote backend, device storage, the stores and their
// background workers.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/kv"
	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/profile"
	"github.com/matheus3301/rentchat/internal/remote"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/matheus3301/rentchat/internal/status"
	"go.uber.org/zap"
)

// Link names of the realtime connections a client keeps.
const (
	LinkConversations = "conversations"
	LinkMessages      = "messages"
	LinkProfiles      = "profiles"
)

const (
	effectQueue   = 64
	effectTimeout = 10 * time.Second
	flushTimeout  = 2 * time.Second
)

// Options configures Open.
type Options struct {
	SessionName string
	SocketPath  string // optional override; empty = session socket
	Config      *config.Config
	Viewer      chat.Viewer
	Notifier    backend.Notifier // nil = log only
	Logger      *zap.Logger
}

// Client is one viewer's chat core.
type Client struct {
	Conversations *chat.Conversations
	Stream        *chat.MessageStream
	Profiles      *profile.Cache
	Bus           *bus.Bus

	remote    *remote.Client
	storage   *kv.Store
	effects   *outbox.Dispatcher
	heartbeat *presence.Heartbeat
	links     []*status.Machine
	viewer    chat.Viewer
	logger    *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	changed chan struct{}
}

// Open connects to the session daemon and builds the stores. Nothing runs
// until Start.
func Open(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("client: config is required")
	}
	if err := session.ValidateUserID(opts.Viewer.UserID); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user_id", opts.Viewer.UserID))
	cfg := opts.Config

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(opts.SessionName)
	}
	rc, err := remote.New(socketPath, opts.Viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("connect daemon: %w", err)
	}
	storage, err := kv.Open(session.DevicePath(opts.SessionName, opts.Viewer.UserID), logger)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("open device storage: %w", err)
	}

	b := bus.New()
	convLink := status.NewMachine(LinkConversations, b)
	msgLink := status.NewMachine(LinkMessages, b)
	profLink := status.NewMachine(LinkProfiles, b)
	effects := outbox.NewDispatcher(effectQueue, effectTimeout, b, logger)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = backend.NotifierFunc(func(_ context.Context, n backend.Notification) {
			logger.Info("new message",
				zap.String("conversation_id", n.ConversationID),
				zap.String("from", n.SenderName))
		})
	}

	profiles := profile.New(rc, rc, rc, profile.Options{
		Collection:   cfg.Collections.Profiles,
		AvatarBucket: cfg.Collections.AvatarBucket,
		SelfID:       opts.Viewer.UserID,
		PollInterval: cfg.Profiles.PollInterval.Duration,
		TickInterval: cfg.Profiles.TickInterval.Duration,
		MaxParallel:  cfg.Profiles.MaxParallel,
		Classifier: presence.Classifier{
			Window: cfg.Presence.OnlineWindow.Duration,
			Locale: presence.Locale(cfg.Locale),
		},
		Machine: profLink,
		Logger:  logger.Named("profiles"),
	})
	stream := chat.NewMessageStream(rc, rc, chat.StreamOptions{
		Collection: cfg.Collections.Messages,
		Notifier:   notifier,
		Effects:    effects,
		Activity:   profiles,
		Machine:    msgLink,
		Logger:     logger.Named("messages"),
	})
	convs := chat.NewConversations(rc, rc, storage, stream, chat.Options{
		Collection: cfg.Collections.Conversations,
		Effects:    effects,
		Machine:    convLink,
		Logger:     logger.Named("conversations"),
	})
	heartbeat := presence.NewHeartbeat(rc, cfg.Collections.Profiles,
		opts.Viewer.UserID, opts.Viewer.Name,
		cfg.Presence.HeartbeatInterval.Duration, logger.Named("heartbeat"))

	return &Client{
		Conversations: convs,
		Stream:        stream,
		Profiles:      profiles,
		Bus:           b,
		remote:        rc,
		storage:       storage,
		effects:       effects,
		heartbeat:     heartbeat,
		links:         []*status.Machine{convLink, msgLink, profLink},
		viewer:        opts.Viewer,
		logger:        logger,
		changed:       make(chan struct{}, 1),
	}, nil
}

// Viewer returns the identity the client acts as.
func (c *Client) Viewer() chat.Viewer {
	return c.viewer
}

// Remote exposes daemon-only calls such as Status and RegisterFile.
func (c *Client) Remote() *remote.Client {
	return c.remote
}

// Links returns the current state of every realtime link by name.
func (c *Client) Links() map[string]status.State {
	out := make(map[string]status.State, len(c.links))
	for _, m := range c.links {
		out[m.Link()] = m.Current()
	}
	return out
}

// Changed receives a value after any store changes. Signals coalesce.
func (c *Client) Changed() <-chan struct{} {
	return c.changed
}

func (c *Client) signal() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Start installs the viewer, loads the conversation list and starts the
// heartbeat, the profile cache and the side-effect worker. The active
// conversation of the previous run is reopened when it still exists.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.effects.Start(runCtx)
	c.Conversations.SetViewer(ctx, c.viewer)
	if err := c.Conversations.Start(ctx); err != nil {
		c.logger.Warn("initial conversation load failed", zap.Error(err))
	}
	c.heartbeat.Start(runCtx)
	c.watchCounterparts(ctx)
	c.Profiles.Start(runCtx)

	c.cancel = cancel
	c.wg.Add(1)
	go c.forward(runCtx)
	c.logger.Info("client started")
	return nil
}

// forward folds the stores' change signals into Changed and keeps the
// profile cache watching every counterpart.
func (c *Client) forward(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-c.Conversations.Changed():
			c.signal()
			c.watchCounterparts(ctx)
		case <-c.Stream.Changed():
			c.signal()
		case <-c.Profiles.Changed():
			c.signal()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) watchCounterparts(ctx context.Context) {
	convs := c.Conversations.All()
	ids := make([]string, 0, len(convs))
	for _, conv := range convs {
		ids = append(ids, chat.Other(conv, c.viewer).UserID)
	}
	c.Profiles.Watch(ctx, ids)
}

// Close stops every worker and subscription and releases the connection and
// device storage. Local state is kept so a later run restores it.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	c.effects.Flush(ctx)
	cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()

	c.Conversations.Stop()
	c.Profiles.Stop()
	c.heartbeat.Stop()
	c.effects.Stop()
	return errors.Join(c.storage.Close(), c.remote.Close())
}

// Logout clears the viewer's session state, including the stored active
// conversation, then closes the client.
func (c *Client) Logout() error {
	c.Conversations.Logout()
	return c.Close()
}
