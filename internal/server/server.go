// Package server exposes the bridge's local HTTP listener: a health
// probe for agent-side availability checks and an inbound endpoint
// accepting one envelope per POST.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/getfinn/bridge/internal/diffview"
	"github.com/getfinn/bridge/internal/protocol"
)

// maxBodySize bounds inbound request bodies (512 KB, matching the frame
// limit on the duplex transport).
const maxBodySize = 512 * 1024

// Handler processes one inbound envelope and reports whether it was
// handled. Errors map to HTTP statuses; unknown methods are not errors.
type Handler func(msg *protocol.Message) error

// Server is the local listener on the extension side of the bridge.
type Server struct {
	addr   string
	handle Handler
	srv    *http.Server
}

// New creates a listener for the given address.
func New(addr string, handle Handler) *Server {
	s := &Server{addr: addr, handle: handle}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// routes builds the HTTP surface.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/", s.handleInbound)
	return r
}

// Start binds the listener and serves in the background. Bind failures
// surface immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	log.Printf("🌐 Listening on http://%s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Listener stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	msg, err := protocol.Parse(body)
	if err != nil {
		log.Printf("⚠️ Dropping malformed inbound request: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.handle(msg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, diffview.ErrMissingContent) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "success"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, text string) {
	writeJSON(w, status, map[string]string{"error": text})
}
