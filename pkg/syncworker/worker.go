// Package syncworker owns the secondary connection to the partner server's store.
//
// The relay core drives a Worker with one-shot commands and observes it only through
// its queue and status flags; the worker never calls back into the core.
package syncworker

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
)

// SessionStatus is the lifecycle state of a partner session
type SessionStatus int32

const (
	SessionNotStarted SessionStatus = iota
	SessionStarting
	SessionRunning
	SessionFailed
	SessionStopped
)

// String returns the string representation of a SessionStatus
func (s SessionStatus) String() string {
	switch s {
	case SessionNotStarted:
		return "not_started"
	case SessionStarting:
		return "starting"
	case SessionRunning:
		return "running"
	case SessionFailed:
		return "failed"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FetchStatus is the state of the most recently requested fetch
type FetchStatus int32

const (
	FetchIdle FetchStatus = iota
	FetchActive
	FetchFinished
	FetchFailed
	// FetchAborted means the session ended before the fetch completed
	FetchAborted
)

// String returns the string representation of a FetchStatus
func (s FetchStatus) String() string {
	switch s {
	case FetchIdle:
		return "idle"
	case FetchActive:
		return "active"
	case FetchFinished:
		return "finished"
	case FetchFailed:
		return "failed"
	case FetchAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Worker is the contract the relay core polls. Every method is non-blocking except
// Terminate, which waits a bounded time for the session to end.
type Worker interface {
	// Start begins a session with the partner. It returns false if the attempt could
	// not even be started. statusOnly limits the session to partner status records.
	Start(partner string, statusOnly bool) bool
	// Shutdown stops the session asynchronously. The worker can be started again.
	Shutdown()
	// Terminate stops the session and waits for it to end. It is idempotent and
	// returns ErrTerminateTimeout when the session outlives the bounded wait.
	Terminate() error

	SessionStatus() SessionStatus
	// QueueRemove returns the next inbound item, or nil when the queue is empty
	QueueRemove() *relayitem.Item

	// RequestFetch asks for every partner item with stamp in [lo, hi]. The items are
	// delivered through the queue before the fetch is reported finished.
	RequestFetch(lo, hi int64) bool
	FetchStatus() FetchStatus
	FetchItemCount() int
}

// Source is a read-only view of the partner store held for one session
type Source interface {
	store.Reader
	Close() error
}

// Dialer opens a Source for the partner identified by handle
type Dialer func(ctx context.Context, partner string) (Source, error)

// Errors reported through logs when a session fails
var (
	ErrNoPartnerStatus = errors.New("partner has no status record")
	ErrWatchClosed     = errors.New("partner change stream closed")

	ErrTerminateTimeout = errors.New("partner session did not stop in time")
)

// nopSource adapts a local store.Reader into a Source. Tests and single-process
// deployments dial the partner's store directly.
type nopSource struct {
	store.Reader
}

func (nopSource) Close() error { return nil }

// LocalDialer returns a Dialer resolving partner handles to in-process readers
func LocalDialer(partners map[string]store.Reader) Dialer {
	return func(ctx context.Context, partner string) (Source, error) {
		r, ok := partners[partner]
		if !ok {
			return nil, errors.New("unknown partner " + partner)
		}
		return nopSource{Reader: r}, nil
	}
}
