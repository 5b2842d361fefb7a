package infra

import (
	"context"
	"net/http"
	"time"
)

// Header reads get a short independent deadline so a slow-writing client
// cannot hold a connection open before the request is even routed.
const readHeaderTimeout = 5 * time.Second

// HTTPServer wraps http.Server with the timeouts the API needs: polling
// clients hit GET /visualize/{id} in tight loops, so idle keep-alive
// connections are expected and the idle timeout is the one knob that
// matters most.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer configures the server from the loaded Config.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *HTTPServer) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests, bounded by ctx.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
