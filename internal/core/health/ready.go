// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter is implemented by the invalidation consumer.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Check probes one dependency.
type Check func(ctx context.Context) error

const checkTimeout = 2 * time.Second

// Readiness is ready when every check passes and, if rr is set, rr reports
// ready.
func Readiness(checks map[string]Check, rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string            `json:"status"`
			Checks     map[string]string `json:"checks,omitempty"`
			Partitions []int32           `json:"partitions,omitempty"`
		}
		out := resp{Status: "ready"}
		ready := true

		names := make([]string, 0, len(checks))
		for n := range checks {
			names = append(names, n)
		}
		sort.Strings(names)
		if len(names) > 0 {
			out.Checks = make(map[string]string, len(names))
		}
		for _, n := range names {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			err := checks[n](ctx)
			cancel()
			if err != nil {
				ready = false
				out.Checks[n] = err.Error()
				continue
			}
			out.Checks[n] = "ok"
		}

		if rr != nil {
			ok, parts := rr.Readiness()
			if ok {
				out.Partitions = parts
			} else {
				ready = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
