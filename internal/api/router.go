// Package api is the webhook transport boundary: routing, the shared-secret
// check, and the XML reply envelope. The conversation logic lives in
// services.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/soaringjerry/Procus/internal/logger"
	"github.com/soaringjerry/Procus/internal/middleware"
)

// Engine is the conversation state machine the webhook drives.
type Engine interface {
	HandleInbound(ctx context.Context, phone, body, ref string) (string, error)
}

type Router struct {
	engine Engine
	token  string
	log    *logger.Logger
}

func NewRouter(engine Engine, token string, log *logger.Logger) *Router {
	return &Router{engine: engine, token: token, log: log}
}

// Register wires the webhook route (token-guarded) and the health check
// (deliberately unguarded, for load balancer probes).
func (rt *Router) Register(mux *http.ServeMux) {
	mux.Handle("/sms", middleware.RequireToken(rt.token, http.HandlerFunc(rt.handleInbound)))
	mux.HandleFunc("/health", rt.handleHealth)
}

// GET|POST /sms?token=...&from=...&message=...&id=...
func (rt *Router) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	phone := r.FormValue("from")
	body := r.FormValue("message")
	ref := r.FormValue("id")

	outbound, err := rt.engine.HandleInbound(r.Context(), phone, body, ref)
	if err != nil {
		rt.log.Error("inbound handling failed", "phone", phone, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeReply(w, outbound)
}

// GET /health
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "status": "Service is healthy"})
}
