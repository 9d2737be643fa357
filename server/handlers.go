package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/endervision20/availability-bot/panel"
	"github.com/endervision20/availability-bot/telemetry"
)

// RootText is the liveness body served on "/".
const RootText = "Availability bot running."

// PanelControl is what the admin endpoints need from the reconciler.
type PanelControl interface {
	Snapshot() panel.Status
	Do(ctx context.Context, fn func(context.Context) error) error
	Reconcile(ctx context.Context) error
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	panel  PanelControl
	checks []Check
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(p PanelControl, checks []Check) *Handlers {
	return &Handlers{panel: p, checks: checks}
}

// HandleRoot answers any GET on "/" with a fixed text so uptime monitors see
// the process is alive.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RootText))
}

// HandleHealthz is the liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz runs the readiness checks in order and reports the first failure.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		if err := check.Fn(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.Name,
				"error":        err.Error(),
			})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleAdminStatus returns the panel state and the active entries.
func (h *Handlers) HandleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.panel.Snapshot())
}

// HandleAdminReconcile forces a sweep and panel push on the dispatcher.
func (h *Handlers) HandleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if err := h.panel.Do(ctx, h.panel.Reconcile); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("admin reconcile failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "panel": h.panel.Snapshot()})
}
