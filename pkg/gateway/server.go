package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// Config holds the gateway's HTTP settings.
type Config struct {
	// HTTPAddr is the listen address, e.g. ":8080". ":0" picks a free
	// port, which tests rely on.
	HTTPAddr string
}

// Server hosts the hub behind an HTTP listener with a health endpoint.
type Server struct {
	logger     zerolog.Logger
	httpServer *http.Server
	mux        *http.ServeMux

	mu         sync.RWMutex
	actualAddr string
	configAddr string
}

// NewServer wires the hub into an HTTP server at /ws, with /healthz for
// probes.
func NewServer(cfg *Config, hub *Hub, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway config cannot be nil")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthzHandler)
	mux.HandleFunc("/ws", hub.HandleWS)

	return &Server{
		logger:     logger.With().Str("component", "GatewayServer").Logger(),
		mux:        mux,
		configAddr: cfg.HTTPAddr,
		httpServer: &http.Server{Addr: cfg.HTTPAddr, Handler: mux},
	}, nil
}

// Start begins listening and serves in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.configAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.configAddr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.actualAddr).Msg("Gateway server listening.")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server failed.")
		}
	}()

	return nil
}

// Shutdown gracefully stops the HTTP server, respecting the context's
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down gateway server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during gateway shutdown.")
		return err
	}
	s.logger.Info().Msg("Gateway server stopped.")
	return nil
}

// Addr returns the address the server is actually listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualAddr
}

// Mux returns the underlying ServeMux so embedders can add routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// HealthzHandler responds to health check probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
