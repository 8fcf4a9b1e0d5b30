package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Serve runs the REST API on addr until ctx is cancelled, then shuts the
// listener down gracefully.
func Serve(ctx context.Context, addr string, d *DB) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		d.log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return err
	}
	return <-errCh
}
