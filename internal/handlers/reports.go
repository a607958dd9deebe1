package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/edgeledger/internal/aggregation"
	"github.com/prudhvinik1/edgeledger/internal/services"
	"github.com/sirupsen/logrus"
)

type ReportHandler struct {
	svc *services.ReportService
	log logrus.FieldLogger
}

func NewReportHandler(svc *services.ReportService, log logrus.FieldLogger) *ReportHandler {
	return &ReportHandler{svc: svc, log: log}
}

func (h *ReportHandler) Routes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.Report)
		r.Get("/vat", h.VAT)
		r.Get("/sales-totals", h.SalesTotals)
		r.Get("/export", h.Export)
	})
}

func (h *ReportHandler) window(r *http.Request) (aggregation.Window, error) {
	q := r.URL.Query()
	return h.svc.Window(q.Get("range"), q.Get("start"), q.Get("end"))
}

func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		writeError(w, h.log, "Report", err)
		return
	}
	data, err := h.svc.Report(r.Context(), win)
	if err != nil {
		writeError(w, h.log, "Report", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *ReportHandler) VAT(w http.ResponseWriter, r *http.Request) {
	month, errM := strconv.Atoi(r.URL.Query().Get("month"))
	year, errY := strconv.Atoi(r.URL.Query().Get("year"))
	if errM != nil || errY != nil {
		writeError(w, h.log, "VAT", fmt.Errorf("%w: month and year are required", services.ErrValidation))
		return
	}
	report, err := h.svc.VATReport(r.Context(), month, year)
	if err != nil {
		writeError(w, h.log, "VAT", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) SalesTotals(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		writeError(w, h.log, "SalesTotals", err)
		return
	}
	totals, err := h.svc.SalesTotals(r.Context(), win)
	if err != nil {
		writeError(w, h.log, "SalesTotals", err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		writeError(w, h.log, "Export", err)
		return
	}
	data, err := h.svc.ExportData(r.Context(), win)
	if err != nil {
		writeError(w, h.log, "Export", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}
