package relay

import (
	"fmt"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// RelayConfig is the replicated relay configuration. It is last-writer-wins on ModeTimestamp.
type RelayConfig struct {
	ModeTimestamp     int64     `json:"mode_timestamp"`
	Mode              RelayMode `json:"relay_mode"`
	ConfiguredPrimary int       `json:"configured_primary"`
}

// Validate checks the mode and configured primary
func (c RelayConfig) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRelayMode, int(c.Mode))
	}
	if c.ConfiguredPrimary != 1 && c.ConfiguredPrimary != 2 {
		return fmt.Errorf("%w, got %d", ErrInvalidConfiguredPrimary, c.ConfiguredPrimary)
	}
	return nil
}

// Merge replaces c with candidate when candidate is strictly newer, or always when forced.
// It reports whether the held value changed.
func (c *RelayConfig) Merge(candidate RelayConfig, force bool) bool {
	if !force && candidate.ModeTimestamp <= c.ModeTimestamp {
		return false
	}
	changed := *c != candidate
	*c = candidate
	return changed
}

// FixedInfo identifies a server build; it does not change during a run
type FixedInfo struct {
	SoftwareVersion string `json:"software_version"`
	ProtocolVersion int    `json:"protocol_version"`
	ServerNumber    int    `json:"server_number"`
}

// ServerStatus is the payload of an ss_<ordinal> record
type ServerStatus struct {
	Info          FixedInfo    `json:"info"`
	HeartbeatTime int64        `json:"heartbeat_time"`
	LinkState     LinkState    `json:"link_state"`
	PrimaryState  PrimaryState `json:"primary_state"`
	StartTime     int64        `json:"start_time"`
	RelayConfig   RelayConfig  `json:"relay_config"`
}

// sameIgnoringHeartbeat compares everything except HeartbeatTime
func (s ServerStatus) sameIgnoringHeartbeat(o ServerStatus) bool {
	s.HeartbeatTime = o.HeartbeatTime
	return s == o
}

// DecodeStatus parses and validates a status record
func DecodeStatus(it *relayitem.Item) (ServerStatus, error) {
	var s ServerStatus
	if it.Kind() != relayitem.KindStatus {
		return s, corruptf("%s is not a status record", it.Key)
	}
	if err := it.Decode(&s); err != nil {
		return s, corruptf("%s: %v", it.Key, err)
	}
	server, err := relayitem.StatusServer(it.Key)
	if err != nil {
		return s, corruptf("%v", err)
	}
	if s.Info.ServerNumber != server {
		return s, corruptf("%s carries server number %d", it.Key, s.Info.ServerNumber)
	}
	if err := s.RelayConfig.Validate(); err != nil {
		return s, corruptf("%s: %v", it.Key, err)
	}
	return s, nil
}

// RemoteStatus is the in-memory mirror of the partner's last observed status
type RemoteStatus struct {
	Status ServerStatus
	Order  relayitem.OrderKey
}

// connectable reports whether a remote status permits a session with local
func connectable(remote, local ServerStatus) bool {
	return remote.Info.ProtocolVersion == local.Info.ProtocolVersion &&
		remote.Info.ServerNumber == 3-local.Info.ServerNumber &&
		remote.LinkState != LinkShutdown &&
		remote.PrimaryState != StateShutdown
}
