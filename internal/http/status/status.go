// Package status serves health and metrics of a running download job.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/gumroad_downloader/internal/telemetry"
)

// Phases of a run, reported by /healthz.
const (
	PhaseStarting        = "starting"
	PhaseSyncingLibrary  = "syncing_library"
	PhaseSyncingProducts = "syncing_products"
	PhaseDownloading     = "downloading"
	PhaseFinished        = "finished"
)

type Handler struct {
	tel     *telemetry.Telemetry
	runID   string
	started time.Time

	mu    sync.RWMutex
	phase string
}

type healthResponse struct {
	Status        string  `json:"status"`
	RunID         string  `json:"run_id"`
	Phase         string  `json:"phase"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func NewHandler(tel *telemetry.Telemetry, runID string) *Handler {
	return &Handler{
		tel:     tel,
		runID:   runID,
		started: time.Now(),
		phase:   PhaseStarting,
	}
}

// SetPhase records what the run is doing now.
func (h *Handler) SetPhase(phase string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.phase = phase
}

func (h *Handler) Phase() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.phase
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID, h.tel.HTTPMiddleware)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", h.tel.Handler())

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:        "ok",
		RunID:         h.runID,
		Phase:         h.Phase(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	})
}

// NewServer binds h to addr. Requests inherit ctx so they log through its logger.
func NewServer(ctx context.Context, addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
