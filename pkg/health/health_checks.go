package health

import (
	"context"
	"time"
)

// StoreCheck reports whether the local relay store answers a ping within timeout
func StoreCheck(ping func(ctx context.Context) error, timeout time.Duration) CheckFunc {
	return func() Check {
		check := Check{Name: "store"}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}
		return check
	}
}

// LinkSnapshot is what LinkCheck needs to know about the partner link
type LinkSnapshot struct {
	Mode        string
	State       string
	FailedCalls int
	RemoteDead  bool
}

// LinkCheck reports the state of the link to the partner server
func LinkCheck(get func() LinkSnapshot) CheckFunc {
	return func() Check {
		snap := get()
		check := Check{
			Name: "link",
			Details: map[string]any{
				"mode":         snap.Mode,
				"state":        snap.State,
				"failed_calls": snap.FailedCalls,
			},
		}

		switch {
		case snap.State == "SOLO":
			check.Status = StatusHealthy
			check.Message = "Solo mode"
		case snap.State == "CONNECTED":
			check.Status = StatusHealthy
			check.Message = "Partner connected"
		case snap.State == "SHUTDOWN":
			check.Status = StatusUnhealthy
			check.Message = "Link shut down"
		case snap.RemoteDead:
			check.Status = StatusDegraded
			check.Message = "Partner unreachable"
		default:
			check.Status = StatusDegraded
			check.Message = "Partner link not established"
		}
		return check
	}
}

// RoleCheck reports the negotiated primary state
func RoleCheck(get func() string) CheckFunc {
	return func() Check {
		state := get()
		check := Check{
			Name:    "role",
			Details: map[string]any{"primary_state": state},
		}

		switch state {
		case "PRIMARY", "SECONDARY":
			check.Status = StatusHealthy
		case "INITIALIZING":
			check.Status = StatusDegraded
			check.Message = "Negotiating role"
		default:
			check.Status = StatusUnhealthy
			check.Message = "Relay not running"
		}
		return check
	}
}
