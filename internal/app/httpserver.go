package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type HTTPServer struct {
	srv  *http.Server
	errc chan error
}

// StartHTTP serves h on addr in the background. A listen failure is
// reported on Err.
func StartHTTP(addr string, h http.Handler, log *zap.Logger) *HTTPServer {
	s := &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		errc: make(chan error, 1),
	}
	go func() {
		log.Info("http listening", zap.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
	}()
	return s
}

func (s *HTTPServer) Err() <-chan error { return s.errc }

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
