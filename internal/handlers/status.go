package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/edgeledger/internal/connectivity"
	"github.com/prudhvinik1/edgeledger/internal/services"
	"github.com/sirupsen/logrus"
)

type StatusHandler struct {
	monitor  *connectivity.Monitor
	records  *services.RecordService
	presence *services.PresenceService // nil when Redis is not configured
	nodeID   string
	log      logrus.FieldLogger
}

func NewStatusHandler(monitor *connectivity.Monitor, records *services.RecordService, presence *services.PresenceService, nodeID string, log logrus.FieldLogger) *StatusHandler {
	return &StatusHandler{monitor: monitor, records: records, presence: presence, nodeID: nodeID, log: log}
}

func (h *StatusHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Get("/presence", h.Presence)
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type statusResponse struct {
	NodeID       string              `json:"node_id"`
	Connectivity connectivity.State  `json:"connectivity"`
	Banner       connectivity.Banner `json:"banner"`
	PendingCount int                 `json:"pending_count"`
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.records.PendingCount(r.Context())
	if err != nil {
		writeError(w, h.log, "Status", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		NodeID:       h.nodeID,
		Connectivity: h.monitor.State(),
		Banner:       h.monitor.Banner(),
		PendingCount: pending,
	})
}

// Presence reports other nodes' published status, e.g. ?nodes=till-1,till-2.
func (h *StatusHandler) Presence(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "presence is not configured"})
		return
	}
	var nodes []string
	for _, n := range strings.Split(r.URL.Query().Get("nodes"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		nodes = []string{h.nodeID}
	}
	presence, err := h.presence.Lookup(r.Context(), nodes)
	if err != nil {
		writeError(w, h.log, "Presence", err)
		return
	}
	writeJSON(w, http.StatusOK, presence)
}
