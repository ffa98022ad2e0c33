package relay

import (
	"fmt"
	"strings"
)

// RelayMode is the configured topology
type RelayMode int

const (
	// ModeSolo runs without a partner
	ModeSolo RelayMode = iota
	// ModeWatch keeps fixed roles while still replicating from the partner
	ModeWatch
	// ModePair negotiates roles with the partner
	ModePair
)

// String returns the string representation of a RelayMode
func (m RelayMode) String() string {
	switch m {
	case ModeSolo:
		return "solo"
	case ModeWatch:
		return "watch"
	case ModePair:
		return "pair"
	default:
		return "unknown"
	}
}

// needsLink reports whether the mode requires a partner connection
func (m RelayMode) needsLink() bool {
	return m == ModeWatch || m == ModePair
}

// Valid reports whether m is one of the defined modes
func (m RelayMode) Valid() bool {
	return m >= ModeSolo && m <= ModePair
}

// ParseRelayMode accepts solo, watch or pair in any case. Anything else is rejected.
func ParseRelayMode(s string) (RelayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solo":
		return ModeSolo, nil
	case "watch":
		return ModeWatch, nil
	case "pair":
		return ModePair, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRelayMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m RelayMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRelayMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *RelayMode) UnmarshalText(b []byte) error {
	v, err := ParseRelayMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// LinkState is the state of the connection to the partner's store
type LinkState int

const (
	LinkShutdown LinkState = iota
	LinkSolo
	LinkDisconnected
	LinkCalling
	LinkInitialSync
	LinkConnected
	LinkResync
)

var linkStateNames = map[LinkState]string{
	LinkShutdown:     "SHUTDOWN",
	LinkSolo:         "SOLO",
	LinkDisconnected: "DISCONNECTED",
	LinkCalling:      "CALLING",
	LinkInitialSync:  "INITIAL_SYNC",
	LinkConnected:    "CONNECTED",
	LinkResync:       "RESYNC",
}

// String returns the string representation of a LinkState
func (s LinkState) String() string {
	if name, ok := linkStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// active reports whether the state implies a live partner session
func (s LinkState) active() bool {
	return s == LinkInitialSync || s == LinkConnected || s == LinkResync
}

// MarshalText implements encoding.TextMarshaler
func (s LinkState) MarshalText() ([]byte, error) {
	name, ok := linkStateNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid link state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *LinkState) UnmarshalText(b []byte) error {
	for k, name := range linkStateNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("invalid link state %q", b)
}

// PrimaryState is the negotiated operating role
type PrimaryState int

const (
	StateInitializing PrimaryState = iota
	StatePrimary
	StateSecondary
	StateShutdown
)

var primaryStateNames = map[PrimaryState]string{
	StateInitializing: "INITIALIZING",
	StatePrimary:      "PRIMARY",
	StateSecondary:    "SECONDARY",
	StateShutdown:     "SHUTDOWN",
}

// String returns the string representation of a PrimaryState
func (s PrimaryState) String() string {
	if name, ok := primaryStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler
func (s PrimaryState) MarshalText() ([]byte, error) {
	name, ok := primaryStateNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid primary state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *PrimaryState) UnmarshalText(b []byte) error {
	for k, name := range primaryStateNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("invalid primary state %q", b)
}

// MergeOutcome is the result of classifying one inbound item
type MergeOutcome int

const (
	MergeNotApplied MergeOutcome = iota
	MergeApplied
	// MergeError means the item was corrupt; the stream it came from is no longer trusted
	MergeError
)

// String returns the string representation of a MergeOutcome
func (o MergeOutcome) String() string {
	switch o {
	case MergeApplied:
		return "applied"
	case MergeNotApplied:
		return "not_applied"
	case MergeError:
		return "error"
	default:
		return "unknown"
	}
}
