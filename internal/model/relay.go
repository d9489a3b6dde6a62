package model

import "fmt"

// RelayID identifies one of the two physical light relays.
type RelayID string

const (
	Relay1 RelayID = "relay1"
	Relay2 RelayID = "relay2"
)

// AllRelays returns the fixed set of relays in a stable order.
func AllRelays() []RelayID {
	return []RelayID{Relay1, Relay2}
}

// ParseRelayID validates an incoming relay identifier.
func ParseRelayID(s string) (RelayID, error) {
	switch RelayID(s) {
	case Relay1, Relay2:
		return RelayID(s), nil
	}
	return "", fmt.Errorf("unknown relay %q", s)
}

// LightSelection says which lights an overtime session keeps on.
type LightSelection string

const (
	LightITMS1 LightSelection = "itms1"
	LightITMS2 LightSelection = "itms2"
	LightAll   LightSelection = "all"
)

// ParseLightSelection validates an incoming light selection. An empty
// value defaults to LightAll, matching records created before the
// selection field existed.
func ParseLightSelection(s string) (LightSelection, error) {
	switch LightSelection(s) {
	case LightITMS1, LightITMS2, LightAll:
		return LightSelection(s), nil
	case "":
		return LightAll, nil
	}
	return "", fmt.Errorf("unknown light selection %q", s)
}

// Covers reports whether the selection requires the given relay to be on.
func (l LightSelection) Covers(id RelayID) bool {
	switch l {
	case LightAll:
		return true
	case LightITMS1:
		return id == Relay1
	case LightITMS2:
		return id == Relay2
	}
	return false
}

// SessionStatus is the lifecycle state of an overtime session.
type SessionStatus int

const (
	StatusNotStarted SessionStatus = 0
	StatusRunning    SessionStatus = 1
	StatusCompleted  SessionStatus = 2
)

func (s SessionStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}
