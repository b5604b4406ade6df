package lifecycle

import "time"

type IncidentType string

const (
	TypePayAndClose IncidentType = "payAndClose"
	TypeContest     IncidentType = "contest"
)

type ChallanType string

const (
	ChallanCourt  ChallanType = "court"
	ChallanOnline ChallanType = "online"
)

// Incident is the aggregate root of the challan lifecycle. FollowUps and
// timeline activities are owned by it and removed with it.
type Incident struct {
	ID              string       `json:"id"`
	IncidentID      string       `json:"incident_id"`
	ChallanNumber   string       `json:"challan_number"`
	VehiclePlate    string       `json:"vehicle_plate"`
	Status          string       `json:"status"`
	Type            IncidentType `json:"type"`
	ChallanType     ChallanType  `json:"challan_type"`
	Source          string       `json:"source,omitempty"`
	FineAmount      int64        `json:"fine_amount"`
	Offence         *string      `json:"offence,omitempty"`
	Queue           Queue        `json:"queue"`
	AssignedAgentID *string      `json:"assigned_agent_id,omitempty"`
	AssignedLawyer  *string      `json:"assigned_lawyer_id,omitempty"`
	ResolutionNotes *string      `json:"resolution_notes,omitempty"`
	OverdueFlagged  bool         `json:"overdue_flagged"`
	CreatedAt       time.Time    `json:"created_at"`
	LastUpdatedAt   time.Time    `json:"last_updated_at"`
	TATDeadline     time.Time    `json:"tat_deadline"`
	Version         int          `json:"version"`
}

// FollowUp is immutable once created and listed newest first.
type FollowUp struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Outcome    string    `json:"outcome"`
	Notes      string    `json:"notes"`
	NextAt     *time.Time `json:"next_follow_up_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
}

type TimelineAction string

const (
	ActionCreated          TimelineAction = "created"
	ActionAgentAssigned    TimelineAction = "agent_assigned"
	ActionLawyerAssigned   TimelineAction = "lawyer_assigned"
	ActionScreened         TimelineAction = "screened"
	ActionQueueChanged     TimelineAction = "queue_changed"
	ActionFollowUpAdded    TimelineAction = "follow_up_added"
	ActionDocumentUploaded TimelineAction = "document_uploaded"
	ActionResolved         TimelineAction = "resolved"
	ActionStatusChanged    TimelineAction = "status_changed"
	ActionValidated        TimelineAction = "validated"
)

// TimelineActivity is an append-only audit entry; exactly one is produced per
// lifecycle-changing operation on an incident.
type TimelineActivity struct {
	ID            string         `json:"id"`
	IncidentID    string         `json:"incident_id"`
	Action        TimelineAction `json:"action"`
	Description   string         `json:"description"`
	CreatedByName string         `json:"created_by_name"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ScreeningResult carries the disposition an external screening provider
// returned for one challan. It is matched to incidents by challan number and
// never mutated locally.
type ScreeningResult struct {
	ChallanNumber     string `json:"challan_number"`
	ViolaterName      string `json:"violater_name"`
	State             string `json:"state"`
	Offence           string `json:"offence"`
	Amount            int64  `json:"amount"`
	VirtualStatus     string `json:"virtual_status"`
	VirtualAmount     int64  `json:"virtual_amount"`
	Disposed          bool   `json:"disposed"`
	DocumentImpound   bool   `json:"document_impound"`
	VehicleImpound    bool   `json:"vehicle_impound"`
	PhysicalCourtStat string `json:"physical_court_status"`
	Place             string `json:"place,omitempty"`
	RTOName           string `json:"rto_name,omitempty"`
}
