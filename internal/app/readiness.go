package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pawhub/pawhub/internal/platform/httpx"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts anything with a Ping method. Values without one are
// always ready.
func PingCheck(v any) ReadinessCheck {
	p, ok := v.(pinger)
	if !ok {
		return func(context.Context) error { return nil }
	}
	return p.Ping
}

type readinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// readinessHandler runs every check concurrently. Failures are logged and
// reported by name only.
func readinessHandler(logger *slog.Logger, checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var mu sync.Mutex
		report := readinessReport{Status: "ready", Checks: make(map[string]string, len(names))}
		var g errgroup.Group
		for _, name := range names {
			check := checks[name]
			g.Go(func() error {
				state := "ok"
				if err := check(ctx); err != nil {
					state = "unavailable"
					logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				}
				mu.Lock()
				report.Checks[name] = state
				if state != "ok" {
					report.Status = "unavailable"
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		if report.Status != "ready" {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, report)
	}
}
