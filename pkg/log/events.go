package log

import (
	"sync"
	"time"
)

const DefaultRetention = 1000

// Event is a single log line kept for display
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Service   string    `json:"service,omitempty"`
	Message   string    `json:"message"`
}

// EventLog is an append-only, capped buffer of events. Once the retention is
// exceeded the oldest events are dropped.
type EventLog struct {
	mutex     sync.Mutex
	retention int
	events    []Event
}

func NewEventLog(retention int) *EventLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &EventLog{retention: retention}
}

func (el *EventLog) Append(e Event) {
	el.mutex.Lock()
	defer el.mutex.Unlock()

	el.events = append(el.events, e)
	if over := len(el.events) - el.retention; over > 0 {
		el.events = append(el.events[:0:0], el.events[over:]...)
	}
}

// Events returns a copy of the retained events, oldest first
func (el *EventLog) Events() []Event {
	el.mutex.Lock()
	defer el.mutex.Unlock()

	out := make([]Event, len(el.events))
	copy(out, el.events)
	return out
}

func (el *EventLog) Len() int {
	el.mutex.Lock()
	defer el.mutex.Unlock()

	return len(el.events)
}
