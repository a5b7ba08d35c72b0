// Package httpapi implements the JSON HTTP API the spec's dashboard
// collaborator talks to — the core's own read/write surface over the
// store, the Gateway Runtime, and the connector pipeline.
//
// Grounded directly on the teacher's Agent Control Protocol server
// (internal/gitai/control/server.go): an http.Server wrapping a mux, a
// Handlers-style dependency bundle instead of ambient globals, the same
// writeJSON/writeError helpers, and the same listen-then-serve-in-a-
// goroutine Start/Stop shape. No web framework is introduced — the
// teacher's own control-plane server is plain net/http, and Go's
// pattern-matching ServeMux (method + {wildcard} segments) covers every
// route this API needs without one.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/connectors"
	"github.com/antigravity-dev/titan/internal/titan/gateway"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

// Deps bundles everything a Server needs to answer a request. Grounded on
// control.Handlers' callback-bundle shape, but holding real collaborator
// handles rather than individual callbacks — this API's handlers read and
// write several independent pieces of state per request (store, risk
// state, connector registry), unlike the ACP server's single-purpose
// hooks.
type Deps struct {
	Store      *store.Store
	Config     *config.Config
	Runtime    *gateway.Runtime
	Connectors *connectors.Registry
	Secrets    connectors.SecretResolver
}

// Server is the dashboard-facing HTTP API server.
type Server struct {
	addr    string
	deps    Deps
	handler http.Handler
	server  *http.Server
}

// New builds a Server listening on addr once Start is called.
func New(addr string, deps Deps) *Server {
	s := &Server{addr: addr, deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runtime/status", s.handleRuntimeStatus)
	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("GET /api/approvals/pending", s.handleListPendingApprovals)
	mux.HandleFunc("POST /api/approvals/{id}/approve", s.handleResolveApproval(true))
	mux.HandleFunc("POST /api/approvals/{id}/deny", s.handleResolveApproval(false))
	mux.HandleFunc("GET /api/traces/recent", s.handleTracesRecent)
	mux.HandleFunc("GET /api/traces/search", s.handleTracesSearch)
	mux.HandleFunc("GET /api/memory/episodic", s.handleEpisodicMemory)
	mux.HandleFunc("GET /api/skills", s.handleListSkills)
	mux.HandleFunc("GET /api/connectors", s.handleListConnectors)
	mux.HandleFunc("POST /api/connectors/{id}/test", s.handleTestConnector)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/mission-control", s.handleMissionControl)

	s.handler = mux
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the server's routed http.Handler, independent of
// Start/Stop's own listener — tests wrap it in httptest.NewServer to get
// an auto-allocated port without binding s.addr.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in a background goroutine, the same
// "return once bound" contract as control.Server.Start.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.addr, err)
	}
	slog.Info("httpapi: listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi: server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
