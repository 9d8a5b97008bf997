// Package metrics provides the Prometheus registry and exposition endpoint.
// All metrics are defined in their respective packages (pagination, client,
// ratelimit, cache, imageload) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server exposes /metrics and /health.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Listen binds addr (e.g. "127.0.0.1:9090"; port 0 picks a free port).
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()

	log.Info().Str("addr", s.Addr()).Msg("Serving metrics")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - topposts_pagination_fetches_total{result} (Counter): Page fetches by result (success, error, discarded)
//   - topposts_pagination_fetch_duration_seconds (Histogram): Page fetch duration
//   - topposts_pagination_items_merged_total (Counter): Items appended to the feed
//   - topposts_pagination_duplicates_dropped_total (Counter): Incoming items dropped as duplicates
//   - topposts_pagination_triggers_ignored_total{reason} (Counter): Triggers ignored (in_flight, exhausted, closed)
//
// Image Metrics (pkg/imageload, pkg/cache):
//   - topposts_image_loads_total{state} (Counter): Image loads by final state (loaded, failed, missing)
//   - topposts_image_loads_discarded_total (Counter): Outcomes discarded after the item changed
//   - topposts_image_cache_hits_total{outcome} (Counter): Thumbnail cache hits by cached outcome
//   - topposts_image_cache_misses_total (Counter): Thumbnail cache misses
//   - topposts_image_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - topposts_rate_limit_remaining (Gauge): Requests remaining in the Reddit window
//   - topposts_rate_limit_blocks_total (Counter): Requests blocked with an exhausted budget
//   - topposts_rate_limit_throttles_total (Counter): Requests throttled with a low budget
//
// Request Metrics (pkg/client):
//   - topposts_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - topposts_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - topposts_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - topposts_retries_total{error_class} (Counter): Retry attempts by error class
//   - topposts_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - topposts_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Duplicate ratio per merged page
//   rate(topposts_pagination_duplicates_dropped_total[5m]) /
//   rate(topposts_pagination_items_merged_total[5m])
//
//   # Thumbnail placeholder rate
//   rate(topposts_image_loads_total{state!="loaded"}[5m]) / rate(topposts_image_loads_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(topposts_request_duration_seconds_bucket[5m]))
