//go:build zmq
// +build zmq

package transport

import (
	"errors"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// zmqSocket wraps a ZeroMQ socket to implement our Socket interface.
type zmqSocket struct {
	sock *zmq.Socket
}

func (s *zmqSocket) Send(data []byte) error {
	_, err := s.sock.SendBytes(data, 0)
	return err
}

func (s *zmqSocket) Recv() ([]byte, error) {
	data, err := s.sock.RecvBytes(0)
	if errors.Is(err, zmq.Errno(syscall.EAGAIN)) {
		return nil, ErrTimeout
	}
	return data, err
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

func (s *zmqSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetRcvtimeo(d)
}

func (s *zmqSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetSndtimeo(d)
}

func (s *zmqSocket) Listen(addr string) error {
	return s.sock.Bind(addr)
}

func (s *zmqSocket) Dial(addr string) error {
	return s.sock.Connect(addr)
}

type zmqSubSocket struct {
	zmqSocket
}

func (s *zmqSubSocket) Subscribe(topic []byte) error {
	return s.sock.SetSubscribe(string(topic))
}

// ZMQFactory creates libzmq sockets. Build with -tags zmq.
type ZMQFactory struct{}

// NewZMQFactory creates a new ZeroMQ socket factory.
func NewZMQFactory() *ZMQFactory {
	return &ZMQFactory{}
}

func newZMQ(t zmq.Type) (*zmqSocket, error) {
	sock, err := zmq.NewSocket(t)
	if err != nil {
		return nil, err
	}
	// Do not block process exit on unsent messages
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (f *ZMQFactory) NewRepSocket() (ListenSocket, error) {
	return newZMQ(zmq.REP)
}

func (f *ZMQFactory) NewReqSocket() (DialSocket, error) {
	s, err := newZMQ(zmq.REQ)
	if err != nil {
		return nil, err
	}
	// A timed-out request must not wedge the REQ state machine
	if err := s.sock.SetReqRelaxed(1); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.sock.SetReqCorrelate(1); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (f *ZMQFactory) NewPubSocket() (ListenSocket, error) {
	return newZMQ(zmq.PUB)
}

func (f *ZMQFactory) NewSubSocket() (SubscribeSocket, error) {
	s, err := newZMQ(zmq.SUB)
	if err != nil {
		return nil, err
	}
	return &zmqSubSocket{*s}, nil
}

var _ SocketFactory = (*ZMQFactory)(nil)

func init() {
	factories["zmq"] = func() SocketFactory { return NewZMQFactory() }
}
