package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the report for probe
func (c *Checker) Handler(probe Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := c.Report(probe)

		code := http.StatusServiceUnavailable
		switch {
		case resp.Status == StatusHealthy:
			code = http.StatusOK
		case resp.Status == StatusDegraded && probe == Liveness:
			code = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}
