package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/bus"
)

// Channel is the bus channel link changes are published on.
const Channel = "realtime.link"

// State represents the state of a realtime link.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Live         State = "LIVE"
	Reconnecting State = "RECONNECTING"
	Closed       State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:         {Connecting, Closed},
	Connecting:   {Live, Reconnecting, Closed},
	Live:         {Reconnecting, Closed},
	Reconnecting: {Connecting, Closed},
	Closed:       {Connecting},
}

// Machine tracks and enforces link state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	link    string
	bus     *bus.Bus
}

// NewMachine creates a new state machine for the named link starting in Idle.
func NewMachine(link string, b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		link:    link,
		bus:     b,
	}
}

// Link returns the link name.
func (m *Machine) Link() string {
	return m.link
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			ID:        uuid.NewString(),
			Name:      "realtime.link.changed",
			Channels:  []string{Channel},
			Timestamp: time.Now(),
			Payload: Change{
				Link: m.link,
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Change is the payload for link change events.
type Change struct {
	Link string
	From State
	To   State
}
