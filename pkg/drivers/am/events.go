package am

import "asimount/pkg/alpaca"

// EventKind says which part of the published state an event is about.
type EventKind int

const (
	EventCoordinates EventKind = iota
	EventTracking
	EventHome
	EventPierSide
	EventTime
)

func (k EventKind) String() string {
	switch k {
	case EventCoordinates:
		return "coordinates"
	case EventTracking:
		return "tracking"
	case EventHome:
		return "home"
	case EventPierSide:
		return "pierside"
	case EventTime:
		return "time"
	}
	return "unknown"
}

// Event is a state-change notification from the poller. Coordinates and
// time republish every cycle; tracking, home and pier side fire only on the
// transition.
type Event struct {
	Kind    EventKind
	Status  alpaca.TelescopeStatus
	Message string
}
