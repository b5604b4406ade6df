package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"vahan-ops/core/incidents"
	"vahan-ops/core/lifecycle"
	"vahan-ops/core/screening"
	"vahan-ops/pkg/metrics"
)

type ScreeningHandler struct {
	batches screening.BatchStore
	svc     *incidents.Service
	logger  *logrus.Logger
}

func NewScreeningHandler(batches screening.BatchStore, svc *incidents.Service, logger *logrus.Logger) *ScreeningHandler {
	return &ScreeningHandler{batches: batches, svc: svc, logger: logger}
}

type startSessionRequest struct {
	Kind        string                      `json:"kind" validate:"required,oneof=screen validate"`
	IncidentIDs []string                    `json:"incident_ids" validate:"required,min=1"`
	Results     []lifecycle.ScreeningResult `json:"results" validate:"required"`
}

// Start opens a screening or validation batch with every returned result
// selected, mirroring how the console presents a fresh result set.
func (h *ScreeningHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	sess := screening.NewSession(screening.Kind(req.Kind), req.IncidentIDs, req.Results, actorName(r), nowUTC())
	if err := h.batches.Save(r.Context(), sess); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(sess, screening.Filter{}))
}

func filterFromQuery(r *http.Request) screening.Filter {
	q := r.URL.Query()
	return screening.Filter{
		State:           strings.TrimSpace(q.Get("state")),
		VirtualStatus:   strings.TrimSpace(q.Get("virtual_status")),
		Disposed:        parseBoolPtr(q.Get("disposed")),
		DocumentImpound: parseBoolPtr(q.Get("document_impound")),
		VehicleImpound:  parseBoolPtr(q.Get("vehicle_impound")),
		Search:          q.Get("q"),
	}
}

func sessionView(sess *screening.Session, f screening.Filter) map[string]any {
	visible := sess.Visible(f)
	rows := make([]map[string]any, 0, len(visible))
	for _, res := range visible {
		rows = append(rows, map[string]any{
			"result":   res,
			"selected": sess.Selected[res.ChallanNumber],
		})
	}
	return map[string]any{
		"id":       sess.ID,
		"kind":     sess.Kind,
		"rows":     rows,
		"selected": sess.SelectedChallans(),
	}
}

func (h *ScreeningHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.batches.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		screeningError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess, filterFromQuery(r)))
}

type toggleRequest struct {
	ChallanNumber string `json:"challan_number" validate:"required"`
}

func (h *ScreeningHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	sess, err := h.batches.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		screeningError(w, err)
		return
	}
	sess.Toggle(req.ChallanNumber)
	if err := h.batches.Save(r.Context(), sess); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": sess.SelectedChallans()})
}

// ToggleAll acts on the rows visible under the filter carried in the query
// string; rows outside the filter keep their selection.
func (h *ScreeningHandler) ToggleAll(w http.ResponseWriter, r *http.Request) {
	sess, err := h.batches.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		screeningError(w, err)
		return
	}
	sess.ToggleAll(filterFromQuery(r))
	if err := h.batches.Save(r.Context(), sess); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": sess.SelectedChallans()})
}

// Confirm closes the workflow and returns the challans the operator left
// checked. The confirmation is advisory: queue movement stays a separate,
// explicit bulk call by the operator.
func (h *ScreeningHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, err := h.batches.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		screeningError(w, err)
		return
	}
	challans := sess.Confirm()
	action := lifecycle.ActionScreened
	if sess.Kind == screening.KindValidate {
		action = lifecycle.ActionValidated
	}
	confirmed, err := h.svc.MarkConfirmed(r.Context(), challans, action, actorName(r))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.batches.Delete(r.Context(), sess.ID)
	metrics.ScreeningConfirms.WithLabelValues(string(sess.Kind)).Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"challan_numbers": challans,
		"incident_ids":    confirmed,
	})
}

// Cancel drops the batch without any mutation, the "close the modal" path.
func (h *ScreeningHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	_ = h.batches.Delete(r.Context(), urlParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func screeningError(w http.ResponseWriter, err error) {
	if errors.Is(err, screening.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	http.Error(w, "server error", http.StatusInternalServerError)
}
