package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server. Evaluate calls are short; the write timeout
// bounds the slowest compliance export page.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
