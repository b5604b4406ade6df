package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vahan-ops/core/lifecycle"
)

var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)

type IncidentFilter struct {
	Queue           string
	Status          string
	Type            string
	AssignedAgentID string
	Search          string
	Limit           int
	Offset          int
}

type IncidentDocument struct {
	ID          string    `json:"id"`
	IncidentID  string    `json:"incident_id"`
	Filename    string    `json:"filename"`
	DocType     string    `json:"document_type"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type IncidentsStore interface {
	CreateIncident(ctx context.Context, inc *lifecycle.Incident, regFormat string) error
	GetIncident(ctx context.Context, id string) (*lifecycle.Incident, error)
	GetIncidentByChallan(ctx context.Context, challanNumber string) (*lifecycle.Incident, error)
	GetIncidentsByIDs(ctx context.Context, ids []string) ([]*lifecycle.Incident, error)
	GetIncidentsByChallans(ctx context.Context, challans []string) ([]*lifecycle.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]lifecycle.Incident, error)
	UpdateIncident(ctx context.Context, inc *lifecycle.Incident, expectedVersion int) error
	DeleteIncident(ctx context.Context, id string) error

	AddFollowUp(ctx context.Context, fu *lifecycle.FollowUp) error
	ListFollowUps(ctx context.Context, incidentID string) ([]lifecycle.FollowUp, error)

	AddTimeline(ctx context.Context, ta *lifecycle.TimelineActivity) error
	ListTimeline(ctx context.Context, incidentID string, limit int) ([]lifecycle.TimelineActivity, error)

	AddDocument(ctx context.Context, doc *IncidentDocument) error
	ListDocuments(ctx context.Context, incidentID string) ([]IncidentDocument, error)

	ListNewlyOverdue(ctx context.Context, now time.Time) ([]lifecycle.Incident, error)
	MarkOverdueFlagged(ctx context.Context, id string) error
	CountByQueue(ctx context.Context) (map[lifecycle.Queue]int, error)
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, incident_id, challan_number, vehicle_plate, status, type, challan_type, source, fine_amount, offence, queue, assigned_agent_id, assigned_lawyer_id, resolution_notes, overdue_flagged, created_at, last_updated_at, tat_deadline, version`

func (s *incidentsStore) CreateIncident(ctx context.Context, inc *lifecycle.Incident, regFormat string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if strings.TrimSpace(inc.IncidentID) == "" {
		year := inc.CreatedAt.UTC().Year()
		seq, err := s.nextSeqTx(ctx, tx, year)
		if err != nil {
			tx.Rollback()
			return err
		}
		inc.IncidentID = buildRegNo(regFormat, year, seq)
	}
	if inc.Version <= 0 {
		inc.Version = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO incidents(`+incidentColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inc.ID, inc.IncidentID, inc.ChallanNumber, inc.VehiclePlate, inc.Status, string(inc.Type), string(inc.ChallanType), strings.TrimSpace(inc.Source), inc.FineAmount, nullableStr(inc.Offence), string(inc.Queue), nullableStr(inc.AssignedAgentID), nullableStr(inc.AssignedLawyer), nullableStr(inc.ResolutionNotes), boolToInt(inc.OverdueFlagged), inc.CreatedAt, inc.LastUpdatedAt, inc.TATDeadline, inc.Version)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *incidentsStore) nextSeqTx(ctx context.Context, tx *sql.Tx, year int) (int, error) {
	var seq int
	err := tx.QueryRowContext(ctx, `SELECT seq FROM incident_seq WHERE year=?`, year).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO incident_seq(year, seq) VALUES(?, 1)`, year); err != nil {
			return 0, err
		}
		return 1, nil
	case err != nil:
		return 0, err
	}
	seq++
	if _, err := tx.ExecContext(ctx, `UPDATE incident_seq SET seq=? WHERE year=?`, seq, year); err != nil {
		return 0, err
	}
	return seq, nil
}

var seqPadRe = regexp.MustCompile(`\{seq:0?(\d+)\}`)

func buildRegNo(format string, year, seq int) string {
	if strings.TrimSpace(format) == "" {
		format = "CHN-{year}-{seq:05}"
	}
	out := strings.ReplaceAll(format, "{year}", strconv.Itoa(year))
	if m := seqPadRe.FindStringSubmatch(out); m != nil {
		width, _ := strconv.Atoi(m[1])
		out = seqPadRe.ReplaceAllString(out, fmt.Sprintf("%0*d", width, seq))
	}
	out = strings.ReplaceAll(out, "{seq}", strconv.Itoa(seq))
	return out
}

func (s *incidentsStore) GetIncident(ctx context.Context, id string) (*lifecycle.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) GetIncidentByChallan(ctx context.Context, challanNumber string) (*lifecycle.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE challan_number=?`, challanNumber)
	return scanIncident(row)
}

func (s *incidentsStore) GetIncidentsByIDs(ctx context.Context, ids []string) ([]*lifecycle.Incident, error) {
	return s.byKeySet(ctx, "id", ids)
}

func (s *incidentsStore) GetIncidentsByChallans(ctx context.Context, challans []string) ([]*lifecycle.Incident, error) {
	return s.byKeySet(ctx, "challan_number", challans)
}

func (s *incidentsStore) byKeySet(ctx context.Context, column string, keys []string) ([]*lifecycle.Incident, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE `+column+` IN (`+placeholders+`) ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*lifecycle.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]lifecycle.Incident, error) {
	var clauses []string
	var args []any
	if filter.Queue != "" {
		clauses = append(clauses, "queue=?")
		args = append(args, filter.Queue)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, filter.Type)
	}
	if filter.AssignedAgentID != "" {
		clauses = append(clauses, "assigned_agent_id=?")
		args = append(args, filter.AssignedAgentID)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		clauses = append(clauses, "(LOWER(challan_number) LIKE ? OR LOWER(vehicle_plate) LIKE ? OR LOWER(incident_id) LIKE ?)")
		args = append(args, like, like, like)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

func (s *incidentsStore) UpdateIncident(ctx context.Context, inc *lifecycle.Incident, expectedVersion int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status=?, fine_amount=?, offence=?, queue=?, assigned_agent_id=?, assigned_lawyer_id=?, resolution_notes=?, overdue_flagged=?, last_updated_at=?, version=version+1
		WHERE id=? AND version=?`,
		inc.Status, inc.FineAmount, nullableStr(inc.Offence), string(inc.Queue), nullableStr(inc.AssignedAgentID), nullableStr(inc.AssignedLawyer), nullableStr(inc.ResolutionNotes), boolToInt(inc.OverdueFlagged), inc.LastUpdatedAt, inc.ID, expectedVersion)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	inc.Version = expectedVersion + 1
	return nil
}

func (s *incidentsStore) DeleteIncident(ctx context.Context, id string) error {
	// Owned rows (follow-ups, timeline, documents) go with the aggregate.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM follow_ups WHERE incident_id=?`,
		`DELETE FROM incident_timeline WHERE incident_id=?`,
		`DELETE FROM incident_documents WHERE incident_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM incidents WHERE id=?`, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *incidentsStore) AddFollowUp(ctx context.Context, fu *lifecycle.FollowUp) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follow_ups(id, incident_id, outcome, notes, next_follow_up_at, created_at, created_by)
		VALUES(?,?,?,?,?,?,?)`,
		fu.ID, fu.IncidentID, fu.Outcome, fu.Notes, nullableTime(fu.NextAt), fu.CreatedAt, fu.CreatedBy)
	return err
}

func (s *incidentsStore) ListFollowUps(ctx context.Context, incidentID string) ([]lifecycle.FollowUp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, outcome, notes, next_follow_up_at, created_at, created_by
		FROM follow_ups WHERE incident_id=? ORDER BY created_at DESC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.FollowUp
	for rows.Next() {
		var fu lifecycle.FollowUp
		var next sql.NullTime
		if err := rows.Scan(&fu.ID, &fu.IncidentID, &fu.Outcome, &fu.Notes, &next, &fu.CreatedAt, &fu.CreatedBy); err != nil {
			return nil, err
		}
		if next.Valid {
			t := next.Time
			fu.NextAt = &t
		}
		out = append(out, fu)
	}
	return out, rows.Err()
}

func (s *incidentsStore) AddTimeline(ctx context.Context, ta *lifecycle.TimelineActivity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_timeline(id, incident_id, action, description, created_by_name, created_at)
		VALUES(?,?,?,?,?,?)`,
		ta.ID, ta.IncidentID, string(ta.Action), ta.Description, ta.CreatedByName, ta.CreatedAt)
	return err
}

func (s *incidentsStore) ListTimeline(ctx context.Context, incidentID string, limit int) ([]lifecycle.TimelineActivity, error) {
	query := `
		SELECT id, incident_id, action, description, created_by_name, created_at
		FROM incident_timeline WHERE incident_id=? ORDER BY created_at DESC`
	args := []any{incidentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.TimelineActivity
	for rows.Next() {
		var ta lifecycle.TimelineActivity
		var action string
		if err := rows.Scan(&ta.ID, &ta.IncidentID, &action, &ta.Description, &ta.CreatedByName, &ta.CreatedAt); err != nil {
			return nil, err
		}
		ta.Action = lifecycle.TimelineAction(action)
		out = append(out, ta)
	}
	return out, rows.Err()
}

func (s *incidentsStore) AddDocument(ctx context.Context, doc *IncidentDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_documents(id, incident_id, filename, document_type, content_type, size_bytes, uploaded_by, uploaded_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		doc.ID, doc.IncidentID, doc.Filename, doc.DocType, doc.ContentType, doc.SizeBytes, doc.UploadedBy, doc.UploadedAt)
	return err
}

func (s *incidentsStore) ListDocuments(ctx context.Context, incidentID string) ([]IncidentDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, filename, document_type, content_type, size_bytes, uploaded_by, uploaded_at
		FROM incident_documents WHERE incident_id=? ORDER BY uploaded_at DESC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IncidentDocument
	for rows.Next() {
		var d IncidentDocument
		if err := rows.Scan(&d.ID, &d.IncidentID, &d.Filename, &d.DocType, &d.ContentType, &d.SizeBytes, &d.UploadedBy, &d.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *incidentsStore) ListNewlyOverdue(ctx context.Context, now time.Time) ([]lifecycle.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE tat_deadline <= ? AND overdue_flagged = 0 ORDER BY tat_deadline`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

func (s *incidentsStore) MarkOverdueFlagged(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE incidents SET overdue_flagged=1 WHERE id=? AND overdue_flagged=0`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *incidentsStore) CountByQueue(ctx context.Context) (map[lifecycle.Queue]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT queue, COUNT(*) FROM incidents GROUP BY queue`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[lifecycle.Queue]int{}
	for rows.Next() {
		var q string
		var n int
		if err := rows.Scan(&q, &n); err != nil {
			return nil, err
		}
		out[lifecycle.Queue(q)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*lifecycle.Incident, error) {
	var inc lifecycle.Incident
	var typ, challanType, queue string
	var offence, agent, lawyer, notes sql.NullString
	var overdue int
	err := row.Scan(&inc.ID, &inc.IncidentID, &inc.ChallanNumber, &inc.VehiclePlate, &inc.Status, &typ, &challanType, &inc.Source, &inc.FineAmount, &offence, &queue, &agent, &lawyer, &notes, &overdue, &inc.CreatedAt, &inc.LastUpdatedAt, &inc.TATDeadline, &inc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inc.Type = lifecycle.IncidentType(typ)
	inc.ChallanType = lifecycle.ChallanType(challanType)
	inc.Queue = lifecycle.Queue(queue)
	inc.Offence = nullStrPtr(offence)
	inc.AssignedAgentID = nullStrPtr(agent)
	inc.AssignedLawyer = nullStrPtr(lawyer)
	inc.ResolutionNotes = nullStrPtr(notes)
	inc.OverdueFlagged = overdue != 0
	return &inc, nil
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullStrPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
