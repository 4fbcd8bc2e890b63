package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the optional HTTP server exposing the /metrics endpoint, only
// started when a --metrics-addr flag is set.
type Server struct {
	addr   string
	path   string
	server *http.Server
}

// NewServer returns a Server listening on addr, serving path (default
// "/metrics").
func NewServer(addr, path string) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{addr: addr, path: path}
}

// Start begins serving in the background. Errors after a successful
// start (other than a clean Stop-triggered shutdown) are swallowed by the
// caller-supplied logger's responsibility, mirroring
// firestige-Otus/internal/metrics/server.go's fire-and-forget goroutine.
func (s *Server) Start(onError func(error)) {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if onError != nil {
				onError(err)
			}
		}
	}()
}

// Stop gracefully shuts down the metrics server, if started.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
