package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes a registry's metrics on /metrics over HTTP.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics HTTP server bound to port, serving the metrics
// gathered by gatherer (prometheus.DefaultGatherer if gatherer is nil).
func NewServer(port int, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start begins serving in the background.
func (s *Server) Start(onError func(error)) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if onError != nil {
				onError(err)
			}
		}
	}()
}

// Close satisfies pkg/shutdown.ListenerCloser.
func (s *Server) Close() error {
	return s.httpServer.Shutdown(context.Background())
}
