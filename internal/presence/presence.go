// Package presence classifies last-seen timestamps and keeps the viewer's
// own timestamp fresh.
package presence

import (
	"fmt"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
)

const (
	// OnlineWindow is slightly larger than HeartbeatInterval so a user does
	// not flicker offline between two beats.
	OnlineWindow      = 75 * time.Second
	HeartbeatInterval = 60 * time.Second
)

// Classifier applies an online window. The zero value uses OnlineWindow.
type Classifier struct {
	Window time.Duration
	Locale Locale
}

func (c Classifier) window() time.Duration {
	if c.Window <= 0 {
		return OnlineWindow
	}
	return c.Window
}

// IsOnline is IsOnlineAt with the current time and the default window.
func IsOnline(lastSeenAt string) bool {
	return Classifier{}.IsOnlineAt(lastSeenAt, time.Now())
}

// IsOnlineAt is IsOnline with the default window evaluated at now.
func IsOnlineAt(lastSeenAt string, now time.Time) bool {
	return Classifier{}.IsOnlineAt(lastSeenAt, now)
}

// LastSeenText is LastSeenTextAt with the current time.
func LastSeenText(lastSeenAt string, loc Locale) string {
	return Classifier{Locale: loc}.LastSeenTextAt(lastSeenAt, time.Now())
}

// LastSeenTextAt renders lastSeenAt relative to now in loc.
func LastSeenTextAt(lastSeenAt string, loc Locale, now time.Time) string {
	return Classifier{Locale: loc}.LastSeenTextAt(lastSeenAt, now)
}

// IsOnlineAt reports whether lastSeenAt lies within the window before now.
// Empty or malformed timestamps are offline. Timestamps slightly in the
// future (clock skew) count as online.
func (c Classifier) IsOnlineAt(lastSeenAt string, now time.Time) bool {
	seen, ok := parse(lastSeenAt)
	if !ok {
		return false
	}
	return now.Sub(seen) <= c.window()
}

// LastSeenTextAt renders a localized "active ..." string, or "" when the
// timestamp is absent or malformed.
func (c Classifier) LastSeenTextAt(lastSeenAt string, now time.Time) string {
	seen, ok := parse(lastSeenAt)
	if !ok {
		return ""
	}
	cat := catalogFor(c.Locale)
	elapsed := now.Sub(seen)
	if elapsed <= c.window() {
		return cat.now
	}
	switch {
	case elapsed < time.Hour:
		return cat.ago(int(elapsed/time.Minute), cat.minute)
	case elapsed < 24*time.Hour:
		return cat.ago(int(elapsed/time.Hour), cat.hour)
	default:
		return cat.ago(int(elapsed/(24*time.Hour)), cat.day)
	}
}

func parse(s string) (time.Time, bool) {
	t := backend.ParseTime(s)
	return t, !t.IsZero()
}

// Locale selects a string catalog.
type Locale string

const (
	English Locale = "en"
	Spanish Locale = "es"
)

type unit struct {
	one, many string
}

type catalog struct {
	now    string
	format string
	minute unit
	hour   unit
	day    unit
}

func (c catalog) ago(n int, u unit) string {
	if n < 1 {
		n = 1
	}
	word := u.many
	if n == 1 {
		word = u.one
	}
	return fmt.Sprintf(c.format, n, word)
}

var catalogs = map[Locale]catalog{
	English: {
		now:    "active now",
		format: "active %d %s ago",
		minute: unit{"minute", "minutes"},
		hour:   unit{"hour", "hours"},
		day:    unit{"day", "days"},
	},
	Spanish: {
		now:    "activo ahora",
		format: "activo hace %d %s",
		minute: unit{"minuto", "minutos"},
		hour:   unit{"hora", "horas"},
		day:    unit{"día", "días"},
	},
}

func catalogFor(loc Locale) catalog {
	if c, ok := catalogs[loc]; ok {
		return c
	}
	return catalogs[English]
}
