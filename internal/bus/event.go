package bus

import "time"

// Event is a realtime notification fanned out to every subscriber listening on
// at least one of its channels.
type Event struct {
	ID        string
	Name      string
	Channels  []string
	Timestamp time.Time
	Payload   any
}
