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
	"github.com/dd0wney/cluso-relay/pkg/syncworker"
)

// ErrClientClosed is returned by a closed Client
var ErrClientClosed = errors.New("transport: client closed")

// ClientConfig holds the partner addresses and request timeout
type ClientConfig struct {
	RequestAddr    string        `yaml:"request_addr" validate:"required,sockaddr"`
	PublishAddr    string        `yaml:"publish_addr" validate:"required,sockaddr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Client reads a partner's store through its Endpoint. It implements syncworker.Source.
type Client struct {
	factory SocketFactory
	config  ClientConfig
	logger  logging.Logger

	mu     sync.Mutex // REQ sockets are strictly send-then-receive
	req    DialSocket
	closed bool
}

// Dial connects the request socket. The change stream socket is opened by Watch.
func Dial(factory SocketFactory, config ClientConfig, logger logging.Logger) (*Client, error) {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	logger = logging.OrDefault(logger).With(logging.Component("client"))

	cleanup := newResourceCleanup(logger)
	defer cleanup.cleanup()

	req, err := factory.NewReqSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create REQ socket: %w", err)
	}
	cleanup.add(req, "request socket")

	if err := req.SetRecvDeadline(config.RequestTimeout); err != nil {
		return nil, fmt.Errorf("failed to set REQ deadline: %w", err)
	}
	if err := req.SetSendDeadline(config.RequestTimeout); err != nil {
		return nil, fmt.Errorf("failed to set REQ deadline: %w", err)
	}
	if err := req.Dial(config.RequestAddr); err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.RequestAddr, err)
	}

	cleanup.clear()
	return &Client{factory: factory, config: config, logger: logger, req: req}, nil
}

// roundTrip sends one request and waits for its reply
func (c *Client) roundTrip(ctx context.Context, msgType MessageType, body any) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := encodeFrame(msgType, body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if err := c.req.Send(frame); err != nil {
		return nil, fmt.Errorf("%s request: %w", msgType, err)
	}
	replyFrame, err := c.req.Recv()
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", msgType, err)
	}

	reply, err := DecodeMessage(replyFrame)
	if err != nil {
		return nil, err
	}
	if reply.Type == MsgError {
		var e ErrorReply
		if err := reply.Decode(&e); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("partner %s: %s", msgType, e.Message)
	}
	return reply, nil
}

// Get implements store.Reader
func (c *Client) Get(ctx context.Context, key string) (*relayitem.Item, error) {
	reply, err := c.roundTrip(ctx, MsgGet, GetRequest{Key: key})
	if err != nil {
		return nil, err
	}

	switch reply.Type {
	case MsgNotFound:
		return nil, nil
	case MsgItem:
		var it relayitem.Item
		if err := reply.Decode(&it); err != nil {
			return nil, err
		}
		return &it, nil
	default:
		return nil, fmt.Errorf("%w: unexpected reply %s to get", ErrBadMessage, reply.Type)
	}
}

// Query implements store.Reader
func (c *Client) Query(ctx context.Context, q store.Query) ([]relayitem.Item, error) {
	reply, err := c.roundTrip(ctx, MsgQuery, QueryRequest{StampLo: q.StampLo, StampHi: q.StampHi, Prefixes: q.Prefixes})
	if err != nil {
		return nil, err
	}
	if reply.Type != MsgItems {
		return nil, fmt.Errorf("%w: unexpected reply %s to query", ErrBadMessage, reply.Type)
	}

	var body itemsReply
	if err := reply.Decode(&body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

// Watch implements store.Reader. Each call opens its own SUB socket, closed when ctx ends.
// A malformed change frame or a broken socket ends the stream.
func (c *Client) Watch(ctx context.Context) (<-chan relayitem.Item, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClientClosed
	}

	cleanup := newResourceCleanup(c.logger)
	defer cleanup.cleanup()

	sub, err := c.factory.NewSubSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	cleanup.add(sub, "change subscriber")

	if err := sub.Subscribe([]byte{}); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	// Short deadline so the loop notices ctx ending
	if err := sub.SetRecvDeadline(250 * time.Millisecond); err != nil {
		return nil, fmt.Errorf("failed to set SUB deadline: %w", err)
	}
	if err := sub.Dial(c.config.PublishAddr); err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.config.PublishAddr, err)
	}
	cleanup.clear()

	ch := make(chan relayitem.Item, 256)
	go func() {
		defer close(ch)
		defer sub.Close()

		for ctx.Err() == nil {
			frame, err := sub.Recv()
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("change stream receive failed", logging.Error(err))
				}
				return
			}

			msg, err := DecodeMessage(frame)
			if err == nil && msg.Type != MsgChange {
				err = fmt.Errorf("%w: unexpected %s on change stream", ErrBadMessage, msg.Type)
			}
			var it relayitem.Item
			if err == nil {
				err = msg.Decode(&it)
			}
			if err != nil {
				c.logger.Warn("change stream corrupt", logging.Error(err))
				return
			}

			select {
			case ch <- it:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Close implements syncworker.Source
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.req.Close()
}

// Dialer returns a syncworker.Dialer resolving partner handles through peers
func Dialer(factory SocketFactory, peers map[string]ClientConfig, logger logging.Logger) syncworker.Dialer {
	return func(ctx context.Context, partner string) (syncworker.Source, error) {
		config, ok := peers[partner]
		if !ok {
			return nil, fmt.Errorf("no transport configured for partner %q", partner)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Dial(factory, config, logger)
	}
}

var _ syncworker.Source = (*Client)(nil)
