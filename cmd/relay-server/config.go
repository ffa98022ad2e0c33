package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-relay/pkg/relay"
	"github.com/dd0wney/cluso-relay/pkg/transport"
	"github.com/dd0wney/cluso-relay/pkg/validation"
)

// ServerConfig is the relay-server configuration file
type ServerConfig struct {
	Server    int    `yaml:"server" validate:"required,oneof=1 2"`
	HTTPAddr  string `yaml:"http_addr" validate:"required"`
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	Transport string `yaml:"transport" validate:"omitempty,oneof=mangos zmq"`

	Relay    RelaySection           `yaml:"relay"`
	Store    StoreSection           `yaml:"store"`
	Endpoint EndpointSection        `yaml:"endpoint"`
	Partner  transport.ClientConfig `yaml:"partner" validate:"-"`
	Tasks    TaskSection            `yaml:"tasks"`
}

// RelaySection holds the relay tunables; zero values take the relay defaults
type RelaySection struct {
	Mode              string `yaml:"mode"`
	ConfiguredPrimary int    `yaml:"configured_primary" validate:"omitempty,oneof=1 2"`
	SoftwareVersion   string `yaml:"software_version"`
	ProtocolVersion   int    `yaml:"protocol_version" validate:"gte=0"`

	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	HeartbeatStaleness  time.Duration `yaml:"heartbeat_staleness"`
	ShortRetryInterval  time.Duration `yaml:"short_retry_interval"`
	LongRetryInterval   time.Duration `yaml:"long_retry_interval"`
	ShortRetryCount     int           `yaml:"short_retry_count" validate:"gte=0"`
	LossThreshold       *int          `yaml:"loss_threshold" validate:"omitempty,gte=0"`
	ResyncInterval      time.Duration `yaml:"resync_interval"`
	ShortLookback       time.Duration `yaml:"short_lookback"`
	LongLookback        time.Duration `yaml:"long_lookback"`
	ResyncCycleLength   int           `yaml:"resync_cycle_length" validate:"gte=0"`
	QuickResyncInterval time.Duration `yaml:"quick_resync_interval"`
	QuickResyncCount    *int          `yaml:"quick_resync_count" validate:"omitempty,gte=0"`
	InitTimeout         time.Duration `yaml:"init_timeout"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	TerminateTimeout    time.Duration `yaml:"terminate_timeout"`
}

// StoreSection selects the local store. An empty DatabaseURL keeps records in memory.
type StoreSection struct {
	DatabaseURL string `yaml:"database_url"`
	Table       string `yaml:"table"`
	MaxConns    int32  `yaml:"max_conns" validate:"gte=0"`
}

// EndpointSection is where this server serves its own store to the partner
type EndpointSection struct {
	RequestAddr string `yaml:"request_addr" validate:"required,sockaddr"`
	PublishAddr string `yaml:"publish_addr" validate:"required,sockaddr"`
}

// TaskSection sizes the analyst override dispatcher
type TaskSection struct {
	Workers int `yaml:"workers" validate:"omitempty,min=1,max=64"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Server:    1,
		HTTPAddr:  ":8090",
		LogLevel:  "info",
		Transport: "mangos",
		Relay:     RelaySection{Mode: "solo"},
		Endpoint: EndpointSection{
			RequestAddr: "tcp://*:9410",
			PublishAddr: "tcp://*:9411",
		},
		Tasks: TaskSection{Workers: 2},
	}
}

// loadServerConfig reads path over the defaults. An empty path returns the defaults.
func loadServerConfig(path string) (ServerConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// validate checks struct tags, then the rules that span sections
func (c *ServerConfig) validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if err := validation.Struct(c); err != nil {
		return err
	}
	mode := relay.ModeSolo
	if c.Relay.Mode != "" {
		var err error
		if mode, err = relay.ParseRelayMode(c.Relay.Mode); err != nil {
			return fmt.Errorf("relay.mode: %w", err)
		}
	}
	return validation.NewConfigValidator("server config").
		When(mode != relay.ModeSolo, func(cv *validation.ConfigValidator) {
			cv.Custom("partner", func() error { return validation.Struct(&c.Partner) })
		}).
		Custom("partner", func() error {
			if c.Partner.RequestAddr != "" && c.Partner.RequestAddr == c.Endpoint.RequestAddr {
				return fmt.Errorf("partner request address %s is this server's own endpoint", c.Partner.RequestAddr)
			}
			return nil
		}).
		Validate()
}

func partnerHandle(server int) string {
	return fmt.Sprintf("server%d", server)
}

// relayConfig maps the file configuration onto relay.Config
func (c *ServerConfig) relayConfig() relay.Config {
	rc := relay.DefaultConfig()
	rc.ServerNumber = c.Server
	rc.PartnerHandle = partnerHandle(3 - c.Server)
	if c.Relay.Mode != "" {
		rc.DefaultMode, _ = relay.ParseRelayMode(c.Relay.Mode)
	}
	rc.DefaultConfiguredPrimary = c.Relay.ConfiguredPrimary
	if c.Relay.SoftwareVersion != "" {
		rc.SoftwareVersion = c.Relay.SoftwareVersion
	}
	rc.ProtocolVersion = validation.DefaultOrInt(c.Relay.ProtocolVersion, rc.ProtocolVersion)

	rc.HeartbeatInterval = validation.DefaultOrDuration(c.Relay.HeartbeatInterval, rc.HeartbeatInterval)
	rc.HeartbeatStaleness = validation.DefaultOrDuration(c.Relay.HeartbeatStaleness, rc.HeartbeatStaleness)
	rc.ShortRetryInterval = validation.DefaultOrDuration(c.Relay.ShortRetryInterval, rc.ShortRetryInterval)
	rc.LongRetryInterval = validation.DefaultOrDuration(c.Relay.LongRetryInterval, rc.LongRetryInterval)
	rc.ShortRetryCount = validation.DefaultOrInt(c.Relay.ShortRetryCount, rc.ShortRetryCount)
	if c.Relay.LossThreshold != nil {
		rc.LossThreshold = *c.Relay.LossThreshold
	}
	rc.ResyncInterval = validation.DefaultOrDuration(c.Relay.ResyncInterval, rc.ResyncInterval)
	rc.ShortLookback = validation.DefaultOrDuration(c.Relay.ShortLookback, rc.ShortLookback)
	rc.LongLookback = validation.DefaultOrDuration(c.Relay.LongLookback, rc.LongLookback)
	rc.ResyncCycleLength = validation.DefaultOrInt(c.Relay.ResyncCycleLength, rc.ResyncCycleLength)
	rc.QuickResyncInterval = validation.DefaultOrDuration(c.Relay.QuickResyncInterval, rc.QuickResyncInterval)
	if c.Relay.QuickResyncCount != nil {
		rc.QuickResyncCount = *c.Relay.QuickResyncCount
	}
	rc.InitTimeout = validation.DefaultOrDuration(c.Relay.InitTimeout, rc.InitTimeout)
	rc.PollInterval = validation.DefaultOrDuration(c.Relay.PollInterval, rc.PollInterval)
	rc.TerminateTimeout = validation.DefaultOrDuration(c.Relay.TerminateTimeout, rc.TerminateTimeout)
	return rc
}
