package relay

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/validation"
)

// Config holds the relay tunables for one server
type Config struct {
	ServerNumber    int    // 1 or 2
	PartnerHandle   string // opaque address of the partner's store, passed to the worker
	SoftwareVersion string
	ProtocolVersion int

	// Relay configuration used when no status record is stored yet.
	// DefaultConfiguredPrimary 0 means this server.
	DefaultMode              RelayMode
	DefaultConfiguredPrimary int

	HeartbeatInterval  time.Duration // how often an unchanged status is rewritten
	HeartbeatStaleness time.Duration // remote heartbeat older than this means the partner is dead

	ShortRetryInterval time.Duration
	LongRetryInterval  time.Duration
	ShortRetryCount    int
	LossThreshold      int

	ResyncInterval      time.Duration
	ShortLookback       time.Duration
	LongLookback        time.Duration
	ResyncCycleLength   int
	QuickResyncInterval time.Duration
	QuickResyncCount    int

	InitTimeout time.Duration

	PollInterval     time.Duration // driver tick
	TerminateTimeout time.Duration // bounded wait for the worker on shutdown
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		ServerNumber:        1,
		SoftwareVersion:     "dev",
		ProtocolVersion:     1,
		DefaultMode:         ModeSolo,
		HeartbeatInterval:   5 * time.Minute,
		HeartbeatStaleness:  45 * time.Minute,
		ShortRetryInterval:  2 * time.Minute,
		LongRetryInterval:   5 * time.Minute,
		ShortRetryCount:     3,
		LossThreshold:       1,
		ResyncInterval:      30 * time.Minute,
		ShortLookback:       24 * time.Hour,
		LongLookback:        730 * 24 * time.Hour,
		ResyncCycleLength:   48,
		QuickResyncInterval: 10 * time.Minute,
		QuickResyncCount:    2,
		InitTimeout:         10 * time.Minute,
		PollInterval:        5 * time.Second,
		TerminateTimeout:    10 * time.Second,
	}
}

// ApplyDefaults fills zero durations and counts. LossThreshold and QuickResyncCount
// may legitimately be zero and are left alone.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	c.ProtocolVersion = validation.DefaultOrInt(c.ProtocolVersion, d.ProtocolVersion)
	if c.SoftwareVersion == "" {
		c.SoftwareVersion = d.SoftwareVersion
	}
	c.HeartbeatInterval = validation.DefaultOrDuration(c.HeartbeatInterval, d.HeartbeatInterval)
	c.HeartbeatStaleness = validation.DefaultOrDuration(c.HeartbeatStaleness, d.HeartbeatStaleness)
	c.ShortRetryInterval = validation.DefaultOrDuration(c.ShortRetryInterval, d.ShortRetryInterval)
	c.LongRetryInterval = validation.DefaultOrDuration(c.LongRetryInterval, d.LongRetryInterval)
	c.ShortRetryCount = validation.DefaultOrInt(c.ShortRetryCount, d.ShortRetryCount)
	c.ResyncInterval = validation.DefaultOrDuration(c.ResyncInterval, d.ResyncInterval)
	c.ShortLookback = validation.DefaultOrDuration(c.ShortLookback, d.ShortLookback)
	c.LongLookback = validation.DefaultOrDuration(c.LongLookback, d.LongLookback)
	c.ResyncCycleLength = validation.DefaultOrInt(c.ResyncCycleLength, d.ResyncCycleLength)
	c.QuickResyncInterval = validation.DefaultOrDuration(c.QuickResyncInterval, d.QuickResyncInterval)
	c.InitTimeout = validation.DefaultOrDuration(c.InitTimeout, d.InitTimeout)
	c.PollInterval = validation.DefaultOrDuration(c.PollInterval, d.PollInterval)
	c.TerminateTimeout = validation.DefaultOrDuration(c.TerminateTimeout, d.TerminateTimeout)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validation.NewConfigValidator("relay config").
		Custom("ServerNumber", func() error {
			if c.ServerNumber != 1 && c.ServerNumber != 2 {
				return fmt.Errorf("%w, got %d", ErrInvalidServerNumber, c.ServerNumber)
			}
			return nil
		}).
		Custom("DefaultMode", func() error {
			if !c.DefaultMode.Valid() {
				return fmt.Errorf("%w: %d", ErrInvalidRelayMode, int(c.DefaultMode))
			}
			return nil
		}).
		When(c.DefaultConfiguredPrimary != 0, func(cv *validation.ConfigValidator) {
			cv.RangeInt("DefaultConfiguredPrimary", c.DefaultConfiguredPrimary, 1, 2)
		}).
		Positive("ProtocolVersion", c.ProtocolVersion).
		MinDuration("HeartbeatInterval", c.HeartbeatInterval, time.Second).
		NotLongerThan("HeartbeatInterval", c.HeartbeatInterval, "HeartbeatStaleness", c.HeartbeatStaleness).
		MinDuration("ShortRetryInterval", c.ShortRetryInterval, time.Millisecond).
		NotLongerThan("ShortRetryInterval", c.ShortRetryInterval, "LongRetryInterval", c.LongRetryInterval).
		NonNegative("ShortRetryCount", c.ShortRetryCount).
		NonNegative("LossThreshold", c.LossThreshold).
		MinDuration("ResyncInterval", c.ResyncInterval, time.Millisecond).
		MinDuration("QuickResyncInterval", c.QuickResyncInterval, time.Millisecond).
		NotLongerThan("ShortLookback", c.ShortLookback, "LongLookback", c.LongLookback).
		Positive("ResyncCycleLength", c.ResyncCycleLength).
		NonNegative("QuickResyncCount", c.QuickResyncCount).
		MinDuration("InitTimeout", c.InitTimeout, time.Millisecond).
		MinDuration("PollInterval", c.PollInterval, time.Millisecond).
		MinDuration("TerminateTimeout", c.TerminateTimeout, time.Millisecond).
		Validate()
}

// PartnerServer returns the other server's ordinal
func (c *Config) PartnerServer() int {
	return 3 - c.ServerNumber
}

// initialRelayConfig is the relay configuration of a server with nothing stored
func (c *Config) initialRelayConfig() RelayConfig {
	primary := c.DefaultConfiguredPrimary
	if primary == 0 {
		primary = c.ServerNumber
	}
	return RelayConfig{Mode: c.DefaultMode, ConfiguredPrimary: primary}
}
