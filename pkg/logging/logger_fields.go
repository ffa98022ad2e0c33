package logging

import (
	"fmt"
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Relay field helpers

func Component(name string) Field {
	return String("component", name)
}

func Server(number int) Field {
	return Int("server", number)
}

// LinkState logs any state enum by its String form
func LinkState(s fmt.Stringer) Field {
	return String("link_state", s.String())
}

func PrimaryState(s fmt.Stringer) Field {
	return String("primary_state", s.String())
}

func RelayMode(m fmt.Stringer) Field {
	return String("relay_mode", m.String())
}

func ItemKey(key string) Field {
	return String("item_key", key)
}

func Session(id string) Field {
	return String("session_id", id)
}

// TimeMillis logs an epoch-millisecond value as RFC3339 alongside the raw number
func TimeMillis(key string, ms int64) Field {
	return Field{Key: key, Value: fmt.Sprintf("%d (%s)", ms, time.UnixMilli(ms).UTC().Format(time.RFC3339))}
}
