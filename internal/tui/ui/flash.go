package ui

import (
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// Flash lifetimes per level.
const (
	infoTTL = 4 * time.Second
	warnTTL = 8 * time.Second
	errTTL  = 12 * time.Second
)

// FlashMessage is a transient notice.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the current notice. It is safe for use from any
// goroutine; the shell redraws on Changed.
type FlashModel struct {
	now     func() time.Time
	changed chan struct{}

	mu      sync.Mutex
	current FlashMessage
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		changed: make(chan struct{}, 1),
	}
}

// Info shows msg as information.
func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo, infoTTL) }

// Warn shows msg as a warning.
func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn, warnTTL) }

// Err shows err.
func (f *FlashModel) Err(err error) { f.set(err.Error(), FlashErr, errTTL) }

func (f *FlashModel) set(msg string, level FlashLevel, ttl time.Duration) {
	f.mu.Lock()
	// A lower level never hides a live error.
	if level < f.current.Level && f.now().Before(f.current.Expires) {
		f.mu.Unlock()
		return
	}
	f.current = FlashMessage{Text: msg, Level: level, Expires: f.now().Add(ttl)}
	f.mu.Unlock()
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Clear drops the current notice.
func (f *FlashModel) Clear() {
	f.mu.Lock()
	f.current = FlashMessage{}
	f.mu.Unlock()
}

// Current returns the live notice, or nil once it expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current.Text == "" || !f.now().Before(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Changed signals after a notice is set. Bursts coalesce into one signal.
func (f *FlashModel) Changed() <-chan struct{} {
	return f.changed
}

// FlashBar draws the current notice.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

// Update draws msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	_, _ = fb.Write([]byte(" " + Paint(color, tview.Escape(msg.Text))))
}
