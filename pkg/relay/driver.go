package relay

import (
	"context"
	"errors"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/logging"
)

// Command runs on the driver goroutine with exclusive access to the relay
type Command func(ctx context.Context, r *Relay) error

type commandRequest struct {
	fn    Command
	reply chan error
}

// Driver owns a Relay and calls Poll on every tick. All other access to the relay goes
// through Do so the relay is only ever touched by one goroutine.
type Driver struct {
	relay           *Relay
	interval        time.Duration
	shutdownTimeout time.Duration
	logger          logging.Logger
	commands        chan commandRequest
	done            chan struct{}
}

// NewDriver creates a driver polling r every interval
func NewDriver(r *Relay, interval time.Duration, logger logging.Logger) *Driver {
	if interval <= 0 {
		interval = r.cfg.PollInterval
	}
	return &Driver{
		relay:           r,
		interval:        interval,
		shutdownTimeout: r.cfg.TerminateTimeout + 5*time.Second,
		logger:          logging.OrDefault(logger).With(logging.Component("relay-driver")),
		commands:        make(chan commandRequest),
		done:            make(chan struct{}),
	}
}

// Run initializes the relay and polls until ctx ends or an invariant is violated, then
// shuts the relay down. The returned error is the invariant violation or the teardown error.
func (d *Driver) Run(ctx context.Context) (err error) {
	defer close(d.done)
	defer d.relay.Close()

	if err := d.relay.Init(ctx); err != nil {
		return err
	}

	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
		defer cancel()
		if terr := d.relay.Shutdown(sctx); terr != nil && err == nil {
			err = terr
		}
	}()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-d.commands:
			req.reply <- req.fn(ctx, d.relay)
		case <-ticker.C:
			if err := d.relay.Poll(ctx); err != nil {
				if errors.Is(err, ErrInvariant) {
					d.logger.Error("Relay invariant violated, stopping", logging.Error(err))
					return err
				}
				d.logger.Error("Relay poll failed", logging.Error(err))
			}
		}
	}
}

// Do runs fn on the driver goroutine and waits for its result
func (d *Driver) Do(ctx context.Context, fn Command) error {
	reply := make(chan error, 1)
	select {
	case d.commands <- commandRequest{fn: fn, reply: reply}:
	case <-d.done:
		return ErrDriverStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetServerRelayMode applies cfg through the driver
func (d *Driver) SetServerRelayMode(ctx context.Context, cfg RelayConfig, force bool) (bool, error) {
	var changed bool
	err := d.Do(ctx, func(ctx context.Context, r *Relay) error {
		var err error
		changed, err = r.SetServerRelayMode(ctx, cfg, force)
		return err
	})
	return changed, err
}

// Relay returns the driven relay. Only its snapshot methods may be called directly.
func (d *Driver) Relay() *Relay {
	return d.relay
}
