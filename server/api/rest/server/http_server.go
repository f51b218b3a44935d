package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pipewright/pipewright/common/logger"
)

type HTTPServerConfig struct {
	// Address is the host:port the server listens on.
	Address string
}

// HTTPServer is an HTTP server that serves pipewright status API requests.
type HTTPServer struct {
	httpServer *http.Server
	config     HTTPServerConfig
	log        logger.Log
}

func NewHTTPServer(handler http.Handler, config HTTPServerConfig, logFactory logger.LogFactory) *HTTPServer {
	return &HTTPServer{
		httpServer: &http.Server{
			Addr:    config.Address,
			Handler: handler,
		},
		config: config,
		log:    logFactory("HTTPServer"),
	}
}

// Start starts listening on the API server HTTP port.
// ListenAndServe is called on a goroutine so this function returns immediately.
func (s *HTTPServer) Start() {
	go func() {
		s.log.Infof("HTTP listening on %s", s.httpServer.Addr)
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			// If we can't start the HTTP server then log an error and terminate the process
			s.log.Fatalf("Error starting server: %s", err)
		}
	}()
}

// Stop shuts down the HTTP server gracefully, allowing all existing HTTP
// requests to complete up until a timeout period expires.
// Stop should only be called once.
func (s *HTTPServer) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	return nil
}

// GetServerURL returns the base URL the server is reachable on.
func (s *HTTPServer) GetServerURL() string {
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}
