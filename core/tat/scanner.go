package tat

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"vahan-ops/core/lifecycle"
	"vahan-ops/pkg/metrics"
)

// SweepStore is the slice of the incidents store the scanner needs.
type SweepStore interface {
	ListNewlyOverdue(ctx context.Context, now time.Time) ([]lifecycle.Incident, error)
	MarkOverdueFlagged(ctx context.Context, id string) error
	AddTimeline(ctx context.Context, ta *lifecycle.TimelineActivity) error
}

type AuditSink interface {
	Append(ctx context.Context, username, action, details string) error
}

// Scanner sweeps for incidents whose TAT deadline has passed and flags each
// one exactly once with a status_changed timeline entry and an audit record.
type Scanner struct {
	store  SweepStore
	audits AuditSink
	logger *logrus.Logger
	cron   *cron.Cron
}

func NewScanner(store SweepStore, audits AuditSink, logger *logrus.Logger) *Scanner {
	return &Scanner{store: store, audits: audits, logger: logger}
}

// Start schedules the sweep with the given cron spec ("@hourly" by default).
func (s *Scanner) Start(spec string) error {
	if spec == "" {
		spec = "@hourly"
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(context.Background(), time.Now().UTC()); err != nil {
			s.logger.WithError(err).Error("tat sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

func (s *Scanner) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// Sweep runs one pass and returns how many incidents were flagged.
func (s *Scanner) Sweep(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.store.ListNewlyOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	flagged := 0
	for i := range overdue {
		inc := &overdue[i]
		if err := s.store.MarkOverdueFlagged(ctx, inc.ID); err != nil {
			// Another sweep got there first.
			continue
		}
		ta := &lifecycle.TimelineActivity{
			ID:            uuid.Must(uuid.NewV4()).String(),
			IncidentID:    inc.ID,
			Action:        lifecycle.ActionStatusChanged,
			Description:   "TAT deadline passed, incident overdue",
			CreatedByName: "system",
			CreatedAt:     now,
		}
		if err := s.store.AddTimeline(ctx, ta); err != nil {
			s.logger.WithError(err).WithField("incident", inc.ID).Error("failed to record overdue timeline entry")
		}
		if s.audits != nil {
			_ = s.audits.Append(ctx, "system", "tat.overdue", fmt.Sprintf("%s deadline=%s", inc.IncidentID, inc.TATDeadline.Format(time.RFC3339)))
		}
		metrics.OverdueFlagged.Inc()
		flagged++
	}
	if flagged > 0 {
		s.logger.WithField("count", flagged).Info("tat sweep flagged overdue incidents")
	}
	return flagged, nil
}
