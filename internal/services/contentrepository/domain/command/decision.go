package command

import (
	"errors"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Validate checks that a decision either emits events or rejects, never
// both and never neither.
func (d Decision) Validate() error {
	switch {
	case len(d.Events) == 0 && len(d.Rejections) == 0:
		return errors.New("decision must contain events or rejections")
	case len(d.Events) > 0 && len(d.Rejections) > 0:
		return errors.New("decision cannot contain both events and rejections")
	}
	return nil
}
