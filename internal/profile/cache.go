// Package profile keeps the profiles of a changing set of watched users
// fresh through polling and realtime updates.
package profile

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultTickInterval = 15 * time.Second
	DefaultMaxParallel  = 8
)

// Profile is a cached user profile.
type Profile struct {
	UserID       string
	Name         string
	AvatarFileID string
	AvatarURL    string
	LastSeenAt   string
}

// Options configures a Cache.
type Options struct {
	Collection   string
	AvatarBucket string
	// SelfID is never watched.
	SelfID       string
	PollInterval time.Duration
	TickInterval time.Duration
	MaxParallel  int
	Classifier   presence.Classifier
	Machine      *status.Machine
	Logger       *zap.Logger
}

type entry struct {
	data      map[string]any
	avatarURL string
}

// Cache holds profile-by-user-id for the watched set. Realtime may be nil,
// in which case the cache only polls. Files may be nil, in which case
// avatar URLs stay empty.
type Cache struct {
	docs   backend.Documents
	rt     backend.Realtime
	files  backend.Files
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	watched map[string]struct{}
	entries map[string]*entry
	// touched records the latest batch token at the time a realtime event
	// wrote an id, so an older in-flight batch cannot overwrite it.
	touched map[string]uint64
	token   uint64
	tick    uint64

	changed chan struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    *realtime.Subscriber
}

// New creates a stopped cache.
func New(docs backend.Documents, rt backend.Realtime, files backend.Files, opts Options) *Cache {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.Collection == "" {
		opts.Collection = "profiles"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		docs:    docs,
		rt:      rt,
		files:   files,
		opts:    opts,
		logger:  logger.With(zap.String("collection", opts.Collection)),
		watched: make(map[string]struct{}),
		entries: make(map[string]*entry),
		touched: make(map[string]uint64),
		changed: make(chan struct{}, 1),
	}
}

// Changed receives a value after any mutation or tick. Signals coalesce.
func (c *Cache) Changed() <-chan struct{} {
	return c.changed
}

func (c *Cache) signal() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Watch replaces the watched set. Empty ids, duplicates and the viewer's
// own id are dropped. Entries no longer watched are pruned and ids without
// a cached entry are fetched before Watch returns.
func (c *Cache) Watch(ctx context.Context, ids []string) {
	c.mu.Lock()
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" || id == c.opts.SelfID {
			continue
		}
		next[id] = struct{}{}
	}
	pruned := false
	for id := range c.entries {
		if _, ok := next[id]; !ok {
			delete(c.entries, id)
			pruned = true
		}
	}
	for id := range c.touched {
		if _, ok := next[id]; !ok {
			delete(c.touched, id)
		}
	}
	c.watched = next
	var missing []string
	for id := range next {
		if _, ok := c.entries[id]; !ok {
			missing = append(missing, id)
		}
	}
	c.mu.Unlock()

	if pruned {
		c.signal()
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		c.fetch(ctx, missing)
	}
}

// Watched returns the watched ids in ascending order.
func (c *Cache) Watched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.watched))
}

// Get returns the cached profile of userID.
func (c *Cache) Get(userID string) (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return Profile{}, false
	}
	return e.profile(userID), true
}

// Snapshot copies every cached profile.
func (c *Cache) Snapshot() map[string]Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Profile, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.profile(id)
	}
	return out
}

// IsOnline classifies the cached lastSeenAt of userID.
func (c *Cache) IsOnline(userID string) bool {
	p, ok := c.Get(userID)
	return ok && c.opts.Classifier.IsOnlineAt(p.LastSeenAt, time.Now())
}

// LastSeenText renders the cached lastSeenAt of userID.
func (c *Cache) LastSeenText(userID string) string {
	p, ok := c.Get(userID)
	if !ok {
		return ""
	}
	return c.opts.Classifier.LastSeenTextAt(p.LastSeenAt, time.Now())
}

// Tick is the aging counter. It only advances so consumers re-render
// relative times.
func (c *Cache) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// ObserveActivity records that userID was seen at at, for example because a
// message from them just arrived. Only a newer timestamp is applied and
// nothing is fetched.
func (c *Cache) ObserveActivity(userID string, at time.Time) {
	c.mu.Lock()
	e, ok := c.entries[userID]
	if !ok {
		c.mu.Unlock()
		return
	}
	prev, _ := e.data["lastSeenAt"].(string)
	if !at.After(backend.ParseTime(prev)) {
		c.mu.Unlock()
		return
	}
	e.data["lastSeenAt"] = backend.FormatTime(at)
	c.mu.Unlock()
	c.signal()
}

// Refresh fetches every watched profile.
func (c *Cache) Refresh(ctx context.Context) {
	c.fetch(ctx, c.Watched())
}

type result struct {
	id        string
	data      map[string]any
	avatarURL string
	missing   bool
	err       error
}

func (c *Cache) nextToken() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token++
	return c.token
}

func (c *Cache) fetch(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	tok := c.nextToken()
	results := make([]result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxParallel)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = c.fetchOne(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	c.apply(tok, results)
}

func (c *Cache) fetchOne(ctx context.Context, id string) result {
	d, err := c.docs.Get(ctx, c.opts.Collection, id)
	if errors.Is(err, backend.ErrNotFound) {
		return result{id: id, missing: true}
	}
	if err != nil {
		return result{id: id, err: err}
	}
	return result{id: id, data: d.Data, avatarURL: c.resolveAvatar(ctx, id, d.Data)}
}

func (c *Cache) resolveAvatar(ctx context.Context, id string, data map[string]any) string {
	fileID, _ := data["avatarFileId"].(string)
	if fileID == "" || c.files == nil {
		return ""
	}
	url, err := c.files.URL(ctx, c.opts.AvatarBucket, fileID)
	if err != nil {
		c.logger.Warn("resolve avatar failed", zap.String("user_id", id), zap.Error(err))
		return ""
	}
	return url
}

// apply installs a batch unless a newer batch has started since tok was
// issued. Ids that stopped being watched are skipped.
func (c *Cache) apply(tok uint64, results []result) bool {
	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		c.logger.Debug("discarding stale profile batch", zap.Uint64("token", tok))
		return false
	}
	for _, r := range results {
		if _, ok := c.watched[r.id]; !ok {
			continue
		}
		if c.touched[r.id] >= tok {
			continue
		}
		switch {
		case r.err != nil:
			if errors.Is(r.err, context.Canceled) {
				continue
			}
			c.logger.Warn("fetch profile failed", zap.String("user_id", r.id), zap.Error(r.err))
		case r.missing:
			delete(c.entries, r.id)
		default:
			c.entries[r.id] = &entry{data: maps.Clone(r.data), avatarURL: r.avatarURL}
		}
	}
	c.mu.Unlock()
	c.signal()
	return true
}

func (c *Cache) handleEvent(ctx context.Context, evt realtime.Event) {
	if evt.Collection != c.opts.Collection {
		return
	}
	id := evt.Document.ID

	c.mu.Lock()
	_, watched := c.watched[id]
	cur := c.entries[id]
	var prevFile string
	if cur != nil {
		prevFile, _ = cur.data["avatarFileId"].(string)
	}
	c.mu.Unlock()
	if !watched {
		return
	}

	if evt.Kind == realtime.Delete {
		c.mu.Lock()
		delete(c.entries, id)
		c.touched[id] = c.token
		c.mu.Unlock()
		c.signal()
		return
	}

	var url string
	fileID, _ := evt.Document.Data["avatarFileId"].(string)
	if cur != nil && fileID == prevFile {
		url = cur.avatarURL
	} else {
		url = c.resolveAvatar(ctx, id, evt.Document.Data)
	}

	c.mu.Lock()
	if _, ok := c.watched[id]; !ok {
		c.mu.Unlock()
		return
	}
	e, ok := c.entries[id]
	if !ok {
		e = &entry{data: make(map[string]any)}
		c.entries[id] = e
	}
	maps.Copy(e.data, evt.Document.Data)
	e.avatarURL = url
	c.touched[id] = c.token
	c.mu.Unlock()
	c.signal()
}

// Start fetches the watched set, then polls, ticks and listens for realtime
// updates until Stop. Calling Start on a running cache restarts it.
func (c *Cache) Start(ctx context.Context) {
	c.Stop()

	c.runMu.Lock()
	defer c.runMu.Unlock()
	ctx, c.cancel = context.WithCancel(ctx)

	if c.rt != nil {
		c.sub = realtime.Start(ctx, c.rt, realtime.Options{
			Channels: []string{backend.CollectionChannel(c.opts.Collection)},
			OnEvent:  func(evt realtime.Event) { c.handleEvent(ctx, evt) },
			OnResync: func() { c.Refresh(ctx) },
			Machine:  c.opts.Machine,
			Logger:   c.logger,
		})
	} else {
		c.logger.Info("no realtime backend, profiles are polled only")
	}

	c.wg.Add(2)
	go c.pollLoop(ctx)
	go c.tickLoop(ctx)
}

// Stop cancels the timers and the subscription and waits for them to exit.
func (c *Cache) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	if c.sub != nil {
		<-c.sub.Done()
		c.sub = nil
	}
	c.wg.Wait()
}

func (c *Cache) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	c.Refresh(ctx)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cache) tickLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.tick++
			c.mu.Unlock()
			c.signal()
		case <-ctx.Done():
			return
		}
	}
}

func (e *entry) profile(id string) Profile {
	p := Profile{UserID: id, AvatarURL: e.avatarURL}
	p.Name, _ = e.data["name"].(string)
	p.AvatarFileID, _ = e.data["avatarFileId"].(string)
	p.LastSeenAt, _ = e.data["lastSeenAt"].(string)
	if uid, ok := e.data["userId"].(string); ok && uid != "" {
		p.UserID = uid
	}
	return p
}
