package incidents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"

	"vahan-ops/config"
	"vahan-ops/core/lifecycle"
	"vahan-ops/core/store"
	"vahan-ops/core/tat"
	"vahan-ops/core/uploads"
	"vahan-ops/pkg/metrics"
)

// Service drives the incident lifecycle: it loads aggregates, applies the
// pure transition functions from core/lifecycle and persists the outcome,
// turning every emitted event into one timeline activity. Each logical bulk
// action also produces exactly one audit entry.
type Service struct {
	cfg    *config.AppConfig
	store  store.IncidentsStore
	audits store.AuditStore
	logger *logrus.Logger
}

func NewService(cfg *config.AppConfig, incidents store.IncidentsStore, audits store.AuditStore, logger *logrus.Logger) *Service {
	return &Service{cfg: cfg, store: incidents, audits: audits, logger: logger}
}

// View is an incident together with its derived TAT, recomputed on every
// read.
type View struct {
	lifecycle.Incident
	TAT tat.Result `json:"tat"`
}

// BulkResult reports the per-incident outcome of a bulk operation. There is
// no cross-incident atomicity: each incident is applied on its own.
type BulkResult struct {
	Applied  []string          `json:"applied"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

func (s *Service) view(inc lifecycle.Incident, now time.Time) View {
	return View{
		Incident: inc,
		TAT:      tat.ComputeWithWindow(inc.TATDeadline, now, s.cfg.Incidents.TATWindowDays),
	}
}

func (s *Service) Create(ctx context.Context, inc *lifecycle.Incident, actor string) (*View, error) {
	now := time.Now().UTC()
	if inc.ID == "" {
		inc.ID = uuid.Must(uuid.NewV4()).String()
	}
	if existing, err := s.store.GetIncidentByChallan(ctx, inc.ChallanNumber); err == nil && existing != nil {
		return nil, fmt.Errorf("challan %s already registered: %w", inc.ChallanNumber, store.ErrConflict)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	ev := lifecycle.NewIncident(inc, now, s.cfg.TATWindow())
	if err := s.store.CreateIncident(ctx, inc, s.cfg.Incidents.RegNoFormat); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	s.recordEvents(ctx, actor, ev)
	s.audit(ctx, actor, "incidents.create", inc.IncidentID)
	s.logger.WithFields(logrus.Fields{"incident_id": inc.IncidentID, "challan": inc.ChallanNumber}).Info("incident created")
	v := s.view(*inc, now)
	return &v, nil
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.view(*inc, time.Now().UTC())
	return &v, nil
}

func (s *Service) List(ctx context.Context, filter store.IncidentFilter) ([]View, error) {
	items, err := s.store.ListIncidents(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]View, 0, len(items))
	for _, inc := range items {
		out = append(out, s.view(inc, now))
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id string, patch lifecycle.UpdatePatch, expectedVersion int, actor string) (*View, error) {
	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	events, changed := lifecycle.ApplyUpdate(inc, patch, now)
	if changed {
		if err := s.store.UpdateIncident(ctx, inc, expectedVersion); err != nil {
			return nil, err
		}
	}
	s.recordEvents(ctx, actor, events...)
	if len(events) > 0 {
		s.audit(ctx, actor, "incidents.update", inc.IncidentID)
	}
	v := s.view(*inc, now)
	return &v, nil
}

// MoveQueue applies one queue transition to every incident in the id set.
func (s *Service) MoveQueue(ctx context.Context, ids []string, target lifecycle.Queue, actor string) (*BulkResult, error) {
	return s.bulk(ctx, ids, actor, "incidents.move_queue", string(target), func(incs []*lifecycle.Incident, now time.Time) ([]lifecycle.Event, map[string]string) {
		events, outcomes := lifecycle.MoveQueue(incs, target, now)
		reasons := map[string]string{}
		for _, o := range outcomes {
			if o.Err != nil {
				reasons[o.IncidentID] = rejectionReason(o.Err)
				metrics.BulkOperationsRejected.WithLabelValues("move_queue", rejectionReason(o.Err)).Inc()
			}
		}
		return events, reasons
	})
}

func (s *Service) AssignAgent(ctx context.Context, ids []string, agentID, actor string) (*BulkResult, error) {
	return s.bulk(ctx, ids, actor, "incidents.assign_agent", agentID, func(incs []*lifecycle.Incident, now time.Time) ([]lifecycle.Event, map[string]string) {
		return lifecycle.AssignAgent(incs, agentID, now), nil
	})
}

func (s *Service) AssignLawyer(ctx context.Context, ids []string, lawyerID, actor string) (*BulkResult, error) {
	return s.bulk(ctx, ids, actor, "incidents.assign_lawyer", lawyerID, func(incs []*lifecycle.Incident, now time.Time) ([]lifecycle.Event, map[string]string) {
		return lifecycle.AssignLawyer(incs, lawyerID, now), nil
	})
}

func (s *Service) bulk(ctx context.Context, ids []string, actor, auditAction, target string, apply func([]*lifecycle.Incident, time.Time) ([]lifecycle.Event, map[string]string)) (*BulkResult, error) {
	incs, err := s.store.GetIncidentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*lifecycle.Incident, len(incs))
	for _, inc := range incs {
		byID[inc.ID] = inc
	}
	result := &BulkResult{Rejected: map[string]string{}}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			result.Rejected[id] = "not found"
		}
	}

	now := time.Now().UTC()
	versions := make(map[string]int, len(incs))
	for _, inc := range incs {
		versions[inc.ID] = inc.Version
	}
	events, reasons := apply(incs, now)

	touched := map[string]struct{}{}
	for _, ev := range events {
		touched[ev.IncidentID] = struct{}{}
	}
	persisted := map[string]struct{}{}
	for _, inc := range incs {
		if _, ok := touched[inc.ID]; !ok {
			if _, rejected := result.Rejected[inc.ID]; !rejected {
				if reason, ok := reasons[inc.ID]; ok {
					result.Rejected[inc.ID] = reason
				} else {
					result.Rejected[inc.ID] = "no change"
				}
			}
			continue
		}
		if err := s.store.UpdateIncident(ctx, inc, versions[inc.ID]); err != nil {
			s.logger.WithError(err).WithField("incident", inc.ID).Error("bulk persist failed")
			result.Rejected[inc.ID] = rejectionReason(err)
			continue
		}
		result.Applied = append(result.Applied, inc.ID)
		persisted[inc.ID] = struct{}{}
		metrics.BulkOperationsApplied.WithLabelValues(auditAction).Inc()
	}
	// The timeline only describes changes that were actually stored; an event
	// whose incident failed to persist must not leave a ghost entry.
	kept := make([]lifecycle.Event, 0, len(events))
	for _, ev := range events {
		if _, ok := persisted[ev.IncidentID]; ok {
			kept = append(kept, ev)
		}
	}
	s.recordEvents(ctx, actor, kept...)
	if len(result.Applied) > 0 {
		s.audit(ctx, actor, auditAction, fmt.Sprintf("target=%s applied=%d rejected=%d", target, len(result.Applied), len(result.Rejected)))
	}
	if len(result.Rejected) == 0 {
		result.Rejected = nil
	}
	return result, nil
}

func (s *Service) AddFollowUp(ctx context.Context, incidentID, outcome, notes string, nextAt *time.Time, actor string) (*lifecycle.FollowUp, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	fu := &lifecycle.FollowUp{
		ID:         uuid.Must(uuid.NewV4()).String(),
		IncidentID: inc.ID,
		Outcome:    outcome,
		Notes:      notes,
		NextAt:     nextAt,
		CreatedAt:  now,
		CreatedBy:  actor,
	}
	if err := s.store.AddFollowUp(ctx, fu); err != nil {
		return nil, err
	}
	s.recordEvents(ctx, actor, lifecycle.Event{
		IncidentID:  inc.ID,
		Action:      lifecycle.ActionFollowUpAdded,
		Description: fmt.Sprintf("follow-up recorded: %s", outcome),
	})
	s.audit(ctx, actor, "incidents.follow_up", inc.IncidentID)
	return fu, nil
}

func (s *Service) ListFollowUps(ctx context.Context, incidentID string) ([]lifecycle.FollowUp, error) {
	return s.store.ListFollowUps(ctx, incidentID)
}

func (s *Service) Timeline(ctx context.Context, incidentID string, limit int) ([]lifecycle.TimelineActivity, error) {
	return s.store.ListTimeline(ctx, incidentID, limit)
}

// RecordDocument validates and records an uploaded incident document. The
// binary itself lives in external document storage; only metadata is kept.
func (s *Service) RecordDocument(ctx context.Context, incidentID, filename, docType, contentType string, sizeBytes int64, actor string) (*store.IncidentDocument, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := uploads.CheckDocument(filename, sizeBytes, s.cfg.Uploads.DocumentMaxBytes); err != nil {
		return nil, err
	}
	doc := &store.IncidentDocument{
		ID:          uuid.Must(uuid.NewV4()).String(),
		IncidentID:  inc.ID,
		Filename:    filename,
		DocType:     docType,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		UploadedBy:  actor,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.store.AddDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.recordEvents(ctx, actor, lifecycle.Event{
		IncidentID:  inc.ID,
		Action:      lifecycle.ActionDocumentUploaded,
		Description: fmt.Sprintf("document %s uploaded (%s)", filename, docType),
	})
	s.audit(ctx, actor, "incidents.document_upload", fmt.Sprintf("%s %s", inc.IncidentID, filename))
	return doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, incidentID string) ([]store.IncidentDocument, error) {
	return s.store.ListDocuments(ctx, incidentID)
}

// RecordBulkFile validates a bulk-update sheet and records the intake. Row
// parsing and the resulting per-row updates are delegated to the external
// bulk processor.
func (s *Service) RecordBulkFile(ctx context.Context, ids []string, filename, contentType string, sizeBytes int64, actor string) error {
	if err := uploads.CheckBulkFile(filename, contentType, sizeBytes, s.cfg.Uploads.BulkUpdateMaxBytes); err != nil {
		return err
	}
	s.audit(ctx, actor, "incidents.bulk_file", fmt.Sprintf("%s incidents=%d", filename, len(ids)))
	return nil
}

// MarkConfirmed records the screened/validated outcome for the challans an
// operator confirmed. Queue movement stays a separate, explicit call.
func (s *Service) MarkConfirmed(ctx context.Context, challans []string, action lifecycle.TimelineAction, actor string) ([]string, error) {
	if action != lifecycle.ActionScreened && action != lifecycle.ActionValidated {
		return nil, errors.New("unsupported confirmation action")
	}
	incs, err := s.store.GetIncidentsByChallans(ctx, challans)
	if err != nil {
		return nil, err
	}
	var confirmed []string
	for _, inc := range incs {
		s.recordEvents(ctx, actor, lifecycle.Event{
			IncidentID:  inc.ID,
			Action:      action,
			Description: fmt.Sprintf("challan %s %s", inc.ChallanNumber, action),
		})
		confirmed = append(confirmed, inc.ID)
	}
	s.audit(ctx, actor, "incidents."+string(action), fmt.Sprintf("challans=%d matched=%d", len(challans), len(confirmed)))
	return confirmed, nil
}

func (s *Service) CountByQueue(ctx context.Context) (map[lifecycle.Queue]int, error) {
	return s.store.CountByQueue(ctx)
}

func (s *Service) recordEvents(ctx context.Context, actor string, events ...lifecycle.Event) {
	now := time.Now().UTC()
	for _, ev := range events {
		ta := &lifecycle.TimelineActivity{
			ID:            uuid.Must(uuid.NewV4()).String(),
			IncidentID:    ev.IncidentID,
			Action:        ev.Action,
			Description:   ev.Description,
			CreatedByName: actor,
			CreatedAt:     now,
		}
		if err := s.store.AddTimeline(ctx, ta); err != nil {
			s.logger.WithError(err).WithField("incident", ev.IncidentID).Error("failed to append timeline activity")
		}
	}
}

func (s *Service) audit(ctx context.Context, actor, action, details string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Append(ctx, actor, action, details); err != nil {
		s.logger.WithError(err).Error("failed to append audit record")
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, lifecycle.ErrSameQueue):
		return "same queue"
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		return "illegal transition"
	case errors.Is(err, lifecycle.ErrUnknownQueue):
		return "unknown queue"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	default:
		return "error"
	}
}
