package conn

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tobsdb/rtable/internal/auth"
	"github.com/tobsdb/rtable/internal/metrics"
	"github.com/tobsdb/rtable/pkg"
)

type Server struct {
	Users  *auth.Users
	Tables *Tables
}

func NewServer(users *auth.Users, tables *Tables) *Server {
	return &Server{Users: users, Tables: tables}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", s.HandleConnection)
	return mux
}

// Listen serves on addr until ctx is done or the process is interrupted,
// then shuts down and closes the store.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	pkg.InfoLog("rtable listening on", addr)
	select {
	case err := <-errs:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	pkg.DebugLog("Shutting down...")
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdown)
	if cerr := s.Tables.Store().Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
