package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// Event records one lifecycle-changing action on one incident. The incidents
// service turns events into timeline activities and audit entries; the engine
// itself performs no I/O.
type Event struct {
	IncidentID  string
	Action      TimelineAction
	Description string
}

// MoveOutcome is the per-incident result of a bulk queue move. Bulk operations
// apply to every id independently; there is no cross-incident atomicity.
type MoveOutcome struct {
	IncidentID string
	Err        error
}

// NewIncident initializes a fresh incident in the initial queue. The TAT
// deadline is fixed at creation and never recomputed afterwards.
func NewIncident(inc *Incident, now time.Time, tatWindow time.Duration) Event {
	inc.Queue = QueueNewIncidents
	if inc.Status == "" {
		inc.Status = "open"
	}
	inc.CreatedAt = now
	inc.LastUpdatedAt = now
	if inc.TATDeadline.IsZero() {
		inc.TATDeadline = now.Add(tatWindow)
	}
	if inc.Version <= 0 {
		inc.Version = 1
	}
	return Event{
		IncidentID:  inc.ID,
		Action:      ActionCreated,
		Description: fmt.Sprintf("incident %s created for challan %s", inc.IncidentID, inc.ChallanNumber),
	}
}

// MoveQueue applies a queue transition to every incident in the slice. Each
// incident succeeds or fails on its own; moved incidents get their queue and
// lastUpdatedAt set and one queue_changed event.
func MoveQueue(incidents []*Incident, target Queue, now time.Time) ([]Event, []MoveOutcome) {
	events := make([]Event, 0, len(incidents))
	outcomes := make([]MoveOutcome, 0, len(incidents))
	for _, inc := range incidents {
		if err := inc.Queue.CanMoveTo(target); err != nil {
			outcomes = append(outcomes, MoveOutcome{IncidentID: inc.ID, Err: err})
			continue
		}
		from := inc.Queue
		inc.Queue = target
		inc.LastUpdatedAt = now
		events = append(events, Event{
			IncidentID:  inc.ID,
			Action:      ActionQueueChanged,
			Description: fmt.Sprintf("queue changed from %s to %s", from, target),
		})
		outcomes = append(outcomes, MoveOutcome{IncidentID: inc.ID})
	}
	return events, outcomes
}

// AssignAgent sets the agent on every incident. An empty agent id clears the
// assignment. Repeated application with the same agent is a no-op, so the
// operation is idempotent and does not flood the timeline.
func AssignAgent(incidents []*Incident, agentID string, now time.Time) []Event {
	return assign(incidents, agentID, now, ActionAgentAssigned, func(inc *Incident) **string {
		return &inc.AssignedAgentID
	})
}

// AssignLawyer mirrors AssignAgent for the lawyer slot.
func AssignLawyer(incidents []*Incident, lawyerID string, now time.Time) []Event {
	return assign(incidents, lawyerID, now, ActionLawyerAssigned, func(inc *Incident) **string {
		return &inc.AssignedLawyer
	})
}

func assign(incidents []*Incident, assignee string, now time.Time, action TimelineAction, slot func(*Incident) **string) []Event {
	assignee = strings.TrimSpace(assignee)
	var events []Event
	for _, inc := range incidents {
		field := slot(inc)
		current := ""
		if *field != nil {
			current = **field
		}
		if current == assignee {
			continue
		}
		if assignee == "" {
			*field = nil
		} else {
			v := assignee
			*field = &v
		}
		inc.LastUpdatedAt = now
		desc := fmt.Sprintf("assigned to %s", assignee)
		if assignee == "" {
			desc = "assignment cleared"
		}
		events = append(events, Event{IncidentID: inc.ID, Action: action, Description: desc})
	}
	return events
}

// UpdatePatch carries the mutable fields of a partial incident update. Nil
// pointers leave the field untouched.
type UpdatePatch struct {
	Status          *string
	Offence         *string
	FineAmount      *int64
	ResolutionNotes *string
}

// ApplyUpdate applies a partial update to one incident and reports the
// resulting events plus whether any field actually changed: status_changed
// when the status moved, resolved when resolution notes were first set.
func ApplyUpdate(inc *Incident, patch UpdatePatch, now time.Time) ([]Event, bool) {
	var events []Event
	changed := false
	if patch.Status != nil && *patch.Status != inc.Status {
		from := inc.Status
		inc.Status = *patch.Status
		changed = true
		events = append(events, Event{
			IncidentID:  inc.ID,
			Action:      ActionStatusChanged,
			Description: fmt.Sprintf("status changed from %s to %s", from, inc.Status),
		})
	}
	if patch.Offence != nil {
		inc.Offence = patch.Offence
		changed = true
	}
	if patch.FineAmount != nil {
		inc.FineAmount = *patch.FineAmount
		changed = true
	}
	if patch.ResolutionNotes != nil {
		first := inc.ResolutionNotes == nil
		inc.ResolutionNotes = patch.ResolutionNotes
		changed = true
		if first {
			events = append(events, Event{
				IncidentID:  inc.ID,
				Action:      ActionResolved,
				Description: "resolution notes recorded",
			})
		}
	}
	if changed {
		inc.LastUpdatedAt = now
	}
	return events, changed
}
