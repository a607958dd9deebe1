package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/edgeledger/internal/services"
	"github.com/sirupsen/logrus"
)

type SyncHandler struct {
	engine   *services.SyncEngine
	records  *services.RecordService
	failures *services.FailureLog
	log      logrus.FieldLogger
}

func NewSyncHandler(engine *services.SyncEngine, records *services.RecordService, failures *services.FailureLog, log logrus.FieldLogger) *SyncHandler {
	return &SyncHandler{engine: engine, records: records, failures: failures, log: log}
}

func (h *SyncHandler) Routes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Post("/drain", h.Drain)
		r.Get("/queue", h.Queue)
		r.Get("/failures", h.Failures)
	})
}

// Drain runs a pass immediately. A pass already in flight yields 409.
func (h *SyncHandler) Drain(w http.ResponseWriter, r *http.Request) {
	res := h.engine.Drain(r.Context())
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (h *SyncHandler) Queue(w http.ResponseWriter, r *http.Request) {
	items, err := h.records.Queue(r.Context())
	if err != nil {
		writeError(w, h.log, "Queue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items), "count": len(items)})
}

func (h *SyncHandler) Failures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(h.failures.List())})
}
