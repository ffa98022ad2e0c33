package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
)

// EndpointConfig holds the addresses a server exposes its store on
type EndpointConfig struct {
	RequestAddr string // e.g. "tcp://*:9410"
	PublishAddr string // e.g. "tcp://*:9411"
	// PollInterval bounds how long the serve loop blocks before checking for shutdown
	PollInterval time.Duration
}

// Endpoint serves a local store to the partner's Client
type Endpoint struct {
	factory SocketFactory
	store   store.Store
	config  EndpointConfig
	logger  logging.Logger

	rep ListenSocket
	pub ListenSocket

	pubMu   sync.Mutex // mangos PUB sockets are safe, libzmq sockets are not
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once
}

// NewEndpoint creates an endpoint; Start opens its sockets
func NewEndpoint(factory SocketFactory, s store.Store, config EndpointConfig, logger logging.Logger) *Endpoint {
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &Endpoint{
		factory: factory,
		store:   s,
		config:  config,
		logger:  logging.OrDefault(logger).With(logging.Component("endpoint")),
	}
}

// Start binds both sockets and begins serving until Close
func (e *Endpoint) Start() error {
	cleanup := newResourceCleanup(e.logger)
	defer cleanup.cleanup()

	rep, err := e.factory.NewRepSocket()
	if err != nil {
		return fmt.Errorf("failed to create REP socket: %w", err)
	}
	cleanup.add(rep, "request responder")
	if err := rep.SetRecvDeadline(e.config.PollInterval); err != nil {
		return fmt.Errorf("failed to set REP deadline: %w", err)
	}
	if err := rep.Listen(e.config.RequestAddr); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.config.RequestAddr, err)
	}

	pub, err := e.factory.NewPubSocket()
	if err != nil {
		return fmt.Errorf("failed to create PUB socket: %w", err)
	}
	cleanup.add(pub, "change publisher")
	if err := pub.Listen(e.config.PublishAddr); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.config.PublishAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := e.store.Watch(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch local store: %w", err)
	}

	e.rep, e.pub, e.cancel = rep, pub, cancel
	cleanup.clear()

	e.wg.Add(2)
	go e.serveRequests(ctx)
	go e.publishChanges(changes)

	e.logger.Info("relay endpoint listening",
		logging.String("request_addr", e.config.RequestAddr),
		logging.String("publish_addr", e.config.PublishAddr))
	return nil
}

// serveRequests answers get and query requests one at a time
func (e *Endpoint) serveRequests(ctx context.Context) {
	defer e.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := e.rep.Recv()
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Warn("request receive failed", logging.Error(err))
			}
			return
		}

		reply := e.handle(ctx, frame)
		if err := e.rep.Send(reply); err != nil && ctx.Err() == nil {
			e.logger.Warn("reply send failed", logging.Error(err))
		}
	}
}

func (e *Endpoint) handle(ctx context.Context, frame []byte) []byte {
	reply, err := e.dispatch(ctx, frame)
	if err != nil {
		e.logger.Debug("request failed", logging.Error(err))
		reply, _ = encodeFrame(MsgError, ErrorReply{Message: err.Error()})
	}
	return reply
}

func (e *Endpoint) dispatch(ctx context.Context, frame []byte) ([]byte, error) {
	msg, err := DecodeMessage(frame)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case MsgGet:
		var req GetRequest
		if err := msg.Decode(&req); err != nil {
			return nil, err
		}
		it, err := e.store.Get(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		if it == nil {
			return encodeFrame(MsgNotFound, nil)
		}
		return encodeFrame(MsgItem, it)

	case MsgQuery:
		var req QueryRequest
		if err := msg.Decode(&req); err != nil {
			return nil, err
		}
		items, err := e.store.Query(ctx, store.Query{StampLo: req.StampLo, StampHi: req.StampHi, Prefixes: req.Prefixes})
		if err != nil {
			return nil, err
		}
		return encodeFrame(MsgItems, itemsReply{Items: items})

	default:
		return nil, fmt.Errorf("%w: unexpected request type %s", ErrBadMessage, msg.Type)
	}
}

// publishChanges forwards every local write to subscribers
func (e *Endpoint) publishChanges(changes <-chan relayitem.Item) {
	defer e.wg.Done()

	for it := range changes {
		frame, err := encodeFrame(MsgChange, it)
		if err != nil {
			e.logger.Warn("change encode failed", logging.ItemKey(it.Key), logging.Error(err))
			continue
		}
		e.pubMu.Lock()
		err = e.pub.Send(frame)
		e.pubMu.Unlock()
		if err != nil {
			e.logger.Debug("change publish failed", logging.ItemKey(it.Key), logging.Error(err))
		}
	}
}

// Close stops serving and closes both sockets. It is idempotent.
func (e *Endpoint) Close() error {
	var err error
	e.stopped.Do(func() {
		if e.cancel == nil {
			return
		}
		e.cancel()
		e.wg.Wait()

		cleanup := newResourceCleanup(e.logger)
		cleanup.add(e.rep, "request responder")
		cleanup.add(e.pub, "change publisher")
		err = cleanup.closeAll()
	})
	return err
}
