package syncer

import "strings"

// Status is the persisted state of the initial sync
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ParseStatus maps a stored value to a Status; empty or unknown values mean the
// sync never ran.
func ParseStatus(value string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusInProgress:
		return StatusInProgress
	case StatusComplete:
		return StatusComplete
	case StatusError:
		return StatusError
	}
	return StatusNotStarted
}

// Terminal reports whether no further transition will happen without a new run
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}
