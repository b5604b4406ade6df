package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"vahan-ops/config"
	"vahan-ops/core/auth"
	"vahan-ops/core/incidents"
	"vahan-ops/core/lifecycle"
	"vahan-ops/core/store"
	"vahan-ops/core/uploads"
)

type IncidentsHandler struct {
	cfg    *config.AppConfig
	svc    *incidents.Service
	logger *logrus.Logger
}

func NewIncidentsHandler(cfg *config.AppConfig, svc *incidents.Service, logger *logrus.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, svc: svc, logger: logger}
}

var validIncidentType = map[string]struct{}{
	string(lifecycle.TypePayAndClose): {},
	string(lifecycle.TypeContest):     {},
}

var validChallanType = map[string]struct{}{
	string(lifecycle.ChallanCourt):  {},
	string(lifecycle.ChallanOnline): {},
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IncidentFilter{
		Queue:           strings.TrimSpace(q.Get("queue")),
		Status:          strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Type:            strings.TrimSpace(q.Get("type")),
		AssignedAgentID: strings.TrimSpace(q.Get("agent")),
		Search:          q.Get("q"),
		Limit:           parseIntDefault(q.Get("limit"), 50),
		Offset:          parseIntDefault(q.Get("offset"), 0),
	}
	items, err := h.svc.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type createIncidentRequest struct {
	ChallanNumber string `json:"challan_number" validate:"required"`
	VehiclePlate  string `json:"vehicle_plate" validate:"required"`
	Type          string `json:"type" validate:"required"`
	ChallanType   string `json:"challan_type" validate:"required"`
	Source        string `json:"source"`
	FineAmount    int64  `json:"fine_amount" validate:"gte=0"`
	Offence       string `json:"offence"`
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIncidentRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if _, ok := validIncidentType[req.Type]; !ok {
		http.Error(w, "invalid incident type", http.StatusBadRequest)
		return
	}
	if _, ok := validChallanType[req.ChallanType]; !ok {
		http.Error(w, "invalid challan type", http.StatusBadRequest)
		return
	}
	inc := &lifecycle.Incident{
		ChallanNumber: strings.TrimSpace(req.ChallanNumber),
		VehiclePlate:  strings.ToUpper(strings.TrimSpace(req.VehiclePlate)),
		Type:          lifecycle.IncidentType(req.Type),
		ChallanType:   lifecycle.ChallanType(req.ChallanType),
		Source:        req.Source,
		FineAmount:    req.FineAmount,
	}
	if o := strings.TrimSpace(req.Offence); o != "" {
		inc.Offence = &o
	}
	view, err := h.svc.Create(r.Context(), inc, actorName(r))
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "challan already registered", http.StatusConflict)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type updateIncidentRequest struct {
	Status          *string `json:"status"`
	Offence         *string `json:"offence"`
	FineAmount      *int64  `json:"fine_amount"`
	ResolutionNotes *string `json:"resolution_notes"`
	Version         int     `json:"version" validate:"gte=1"`
}

func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateIncidentRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	patch := lifecycle.UpdatePatch{
		Status:          req.Status,
		Offence:         req.Offence,
		FineAmount:      req.FineAmount,
		ResolutionNotes: req.ResolutionNotes,
	}
	view, err := h.svc.Update(r.Context(), urlParam(r, "id"), patch, req.Version, actorName(r))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, store.ErrConflict):
			http.Error(w, "conflict", http.StatusConflict)
		default:
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Bulk operations follow the prompt/apply contract: the endpoint is only
// called once the operator picked a concrete target, so a missing target is
// a client error, never a prompt.

type moveQueueRequest struct {
	IncidentIDs []string `json:"incident_ids" validate:"required,min=1"`
	TargetQueue string   `json:"target_queue" validate:"required"`
}

func (h *IncidentsHandler) MoveQueue(w http.ResponseWriter, r *http.Request) {
	var req moveQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	target := lifecycle.Queue(req.TargetQueue)
	if !target.Valid() {
		http.Error(w, "unknown queue", http.StatusBadRequest)
		return
	}
	result, err := h.svc.MoveQueue(r.Context(), req.IncidentIDs, target, actorName(r))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type assignRequest struct {
	IncidentIDs []string `json:"incident_ids" validate:"required,min=1"`
	AssigneeID  string   `json:"assignee_id"`
}

func (h *IncidentsHandler) AssignAgent(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.svc.AssignAgent)
}

func (h *IncidentsHandler) AssignLawyer(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.svc.AssignLawyer)
}

func (h *IncidentsHandler) assign(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, ids []string, assignee, actor string) (*incidents.BulkResult, error)) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := apply(r.Context(), req.IncidentIDs, req.AssigneeID, actorName(r))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type followUpRequest struct {
	Outcome string     `json:"outcome" validate:"required"`
	Notes   string     `json:"notes"`
	NextAt  *time.Time `json:"next_follow_up_date"`
}

func (h *IncidentsHandler) AddFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	fu, err := h.svc.AddFollowUp(r.Context(), urlParam(r, "id"), req.Outcome, req.Notes, req.NextAt, actorName(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, fu)
}

func (h *IncidentsHandler) ListFollowUps(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListFollowUps(r.Context(), urlParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	items, err := h.svc.Timeline(r.Context(), urlParam(r, "id"), limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.Uploads.DocumentMaxBytes); err != nil {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	file.Close()
	doc, err := h.svc.RecordDocument(r.Context(), urlParam(r, "id"), header.Filename, r.FormValue("document_type"), header.Header.Get("Content-Type"), header.Size, actorName(r))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, uploads.ErrFileType), errors.Is(err, uploads.ErrFileTooLarge), errors.Is(err, uploads.ErrEmptyFilename):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *IncidentsHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListDocuments(r.Context(), urlParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) BulkUpdateFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.Uploads.BulkUpdateMaxBytes); err != nil {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	file.Close()
	ids := r.MultipartForm.Value["incident_ids"]
	if err := h.svc.RecordBulkFile(r.Context(), ids, header.Filename, header.Header.Get("Content-Type"), header.Size, actorName(r)); err != nil {
		if errors.Is(err, uploads.ErrFileType) || errors.Is(err, uploads.ErrFileTooLarge) || errors.Is(err, uploads.ErrEmptyFilename) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "incidents": len(ids)})
}

func (h *IncidentsHandler) BulkUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=incident_bulk_update_template.csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(uploads.Template(uploads.BulkUpdateColumns, uploads.BulkUpdateSampleRow)))
}

func (h *IncidentsHandler) QueueCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.CountByQueue(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func actorName(r *http.Request) string {
	if sess := auth.SessionFromContext(r.Context()); sess != nil {
		return sess.Username
	}
	return "system"
}
