package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// MessageType represents the type of relay transport message
type MessageType uint8

const (
	// Requests
	MsgGet MessageType = iota + 1
	MsgQuery

	// Replies
	MsgItem
	MsgItems
	MsgNotFound
	MsgError

	// Change stream
	MsgChange
)

// String returns the string representation of a MessageType
func (t MessageType) String() string {
	switch t {
	case MsgGet:
		return "get"
	case MsgQuery:
		return "query"
	case MsgItem:
		return "item"
	case MsgItems:
		return "items"
	case MsgNotFound:
		return "not_found"
	case MsgError:
		return "error"
	case MsgChange:
		return "change"
	default:
		return "unknown"
	}
}

// ErrBadMessage is returned for frames that do not decode
var ErrBadMessage = errors.New("transport: malformed message")

// Message is the envelope for every frame on the wire
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      []byte      `json:"data,omitempty"`
}

// GetRequest asks for one item by key
type GetRequest struct {
	Key string `json:"key"`
}

// QueryRequest asks for items by stamp window and key prefix
type QueryRequest struct {
	StampLo  int64    `json:"stamp_lo"`
	StampHi  int64    `json:"stamp_hi"`
	Prefixes []string `json:"prefixes,omitempty"`
}

// ErrorReply carries a server-side failure
type ErrorReply struct {
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and data
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var dataBytes []byte
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		dataBytes = b
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      dataBytes,
	}, nil
}

// Decode decodes message data into the provided value
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrBadMessage, m.Type, err)
	}
	return nil
}

// Encode serializes the message to a snappy-compressed JSON frame
func (m *Message) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeMessage parses a frame produced by Encode
func DecodeMessage(frame []byte) (*Message, error) {
	raw, err := snappy.Decode(nil, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return &m, nil
}

// encodeFrame builds and encodes a message in one step
func encodeFrame(msgType MessageType, data any) ([]byte, error) {
	m, err := NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	return m.Encode()
}

// itemsReply is the payload of MsgItems
type itemsReply struct {
	Items []relayitem.Item `json:"items"`
}
