package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const scrapeDrainTimeout = 5 * time.Second

// Serve exposes the relay's registry over HTTP at /metrics on ln, whose
// ownership it takes. It blocks until ctx is cancelled and in-progress
// scrapes have drained, or until the server fails. Cancellation returns
// nil; anything else is the server's error.
func (m *Metrics) Serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		ErrorLog: errLog,
	}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          errLog,
	}

	// Same teardown pattern as the relay loop: cancellation unblocks the
	// blocked Serve call.
	drained := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(drained)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), scrapeDrainTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
	})
	defer stop()

	logger.Info("metrics exposed", "addr", ln.Addr(), "path", "/metrics")
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// ErrServerClosed means the teardown fired; wait for its drain.
	<-drained
	return nil
}
