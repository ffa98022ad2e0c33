// Package transport carries partner store access over a messaging socket: REQ/REP for
// point and range reads, PUB/SUB for the change stream.
package transport

import (
	"errors"
	"io"
	"time"
)

// ErrTimeout is returned by Recv when the receive deadline passes
var ErrTimeout = errors.New("transport: receive timed out")

// Socket represents a messaging socket that can send and receive messages.
// This interface abstracts the underlying library (mangos, ZeroMQ, or a mock).
type Socket interface {
	io.Closer
	Send([]byte) error
	// Recv returns ErrTimeout when the receive deadline passes
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket is a socket that can bind to an address and accept connections.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket is a socket that can connect to a remote address.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SubscribeSocket is a SUB socket that can subscribe to topics.
type SubscribeSocket interface {
	DialSocket
	Subscribe(topic []byte) error
}

// SocketFactory creates sockets for the patterns the relay uses.
type SocketFactory interface {
	NewRepSocket() (ListenSocket, error)
	NewReqSocket() (DialSocket, error)
	NewPubSocket() (ListenSocket, error)
	NewSubSocket() (SubscribeSocket, error)
}
