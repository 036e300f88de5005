package supervisor

import (
	"context"
	"net/http"
	"time"
)

const (
	healthPath  = "/healthz"
	destroyPath = "/processmanager/destroy"
)

// isHealthy checks if the engine at baseURL responds OK to /healthz.
func (s *Supervisor) isHealthy(ctx context.Context, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// requestDestroy asks the engine to shut itself down. Errors are ignored.
func (s *Supervisor) requestDestroy(ctx context.Context, baseURL string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+destroyPath, nil)
	if err != nil {
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Debug().Err(err).Str("url", baseURL).Msg("engine destroy request failed")
		return
	}
	_ = resp.Body.Close()
}
