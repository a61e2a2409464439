package httpx

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const defaultReadinessTimeout = 2 * time.Second

// HealthCheck is one dependency probe run by /readyz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports liveness. It never touches dependencies.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// readinessHandler runs every check in parallel and answers 503 if any fails.
func readinessHandler(checks []HealthCheck, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, hc := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result := "ok"
				if err := hc.Check(ctx); err != nil {
					result = "error: " + err.Error()
				}
				mu.Lock()
				resp.Checks[hc.Name] = result
				if result != "ok" {
					resp.Status = "unavailable"
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, resp)
	}
}
