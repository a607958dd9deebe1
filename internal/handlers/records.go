package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/edgeledger/internal/services"
	"github.com/sirupsen/logrus"
)

type RecordHandler struct {
	svc *services.RecordService
	log logrus.FieldLogger
}

func NewRecordHandler(svc *services.RecordService, log logrus.FieldLogger) *RecordHandler {
	return &RecordHandler{svc: svc, log: log}
}

func (h *RecordHandler) Routes(r chi.Router) {
	r.Route("/tables/{table}", func(r chi.Router) {
		r.Get("/records", h.List)
		r.Post("/records", h.Create)
		r.Get("/records/{id}", h.Get)
		r.Patch("/records/{id}", h.Update)
		r.Delete("/records/{id}", h.Delete)
		r.Get("/index/{index}/{key}", h.QueryByIndex)
		r.Post("/hydrate", h.Hydrate)
	})
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListRecords(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, h.log, "List", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(records)})
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetRecord(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, "Get", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, h.log, "Create", err)
		return
	}
	rec, err := h.svc.AddRecord(r.Context(), chi.URLParam(r, "table"), fields)
	if err != nil {
		writeError(w, h.log, "Create", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.log, "Update", err)
		return
	}
	rec, err := h.svc.UpdateRecord(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, h.log, "Update", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRecord(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, "Delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) QueryByIndex(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.QueryByIndex(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "index"), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, h.log, "QueryByIndex", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(records)})
}

func (h *RecordHandler) Hydrate(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Hydrate(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, h.log, "Hydrate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stored": n})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
