package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tempo/internal/shared"
)

// Listener is the short-lived loopback HTTP server that catches the provider's
// authorization redirect.
//
// It binds exactly the host and port registered with the provider; the port is
// never renegotiated at runtime. Stopping an already-stopped listener is a
// no-op.
type Listener struct {
	addr    string
	handler http.Handler
	logger  *log.Logger

	mu      sync.Mutex
	srv     *http.Server
	running bool
}

// NewListener creates a listener for the given loopback address.
func NewListener(host string, port int, handler http.Handler, logger *log.Logger) *Listener {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Listener{
		addr:    fmt.Sprintf("%s:%d", host, port),
		handler: handler,
		logger:  logger,
	}
}

// Addr returns the address the listener binds.
func (l *Listener) Addr() string {
	return l.addr
}

// Start binds the port and begins serving in the background.
//
// A bind failure because the port is held by another process surfaces as
// [shared.ErrPortInUse] so callers can tell the user to free it, instead of a
// generic network error.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("%w: listener already running on %s", shared.ErrPortInUse, l.addr)
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %s is held by another process", shared.ErrPortInUse, l.addr)
		}
		return fmt.Errorf("failed to bind %s: %w", l.addr, err)
	}

	l.srv = &http.Server{
		Handler:      l.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	l.running = true

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Warnf("callback listener stopped unexpectedly %v", err)
		}
	}(l.srv)

	l.logger.Debugf("callback listener bound to %v", l.addr)

	return nil
}

// Stop shuts the listener down, releasing the port. Safe to call any number of
// times and from any completion path.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running || l.srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := l.srv.Shutdown(shutdownCtx)
	l.running = false
	l.srv = nil

	l.logger.Debug("callback listener stopped")

	return err
}
