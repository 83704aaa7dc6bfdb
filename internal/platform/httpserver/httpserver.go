package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for the provenance service.
// Write timeout stays generous because the GitHub token exchange happens
// inside the callback handler.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
