package screening

import (
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"vahan-ops/core/lifecycle"
)

// Kind distinguishes the two workflows sharing the selection mechanic.
type Kind string

const (
	KindScreen   Kind = "screen"
	KindValidate Kind = "validate"
)

// Filter narrows what the operator currently sees. It never changes which
// rows are selected, only which rows a select-all acts on.
type Filter struct {
	State           string `json:"state,omitempty"`
	VirtualStatus   string `json:"virtual_status,omitempty"`
	Disposed        *bool  `json:"disposed,omitempty"`
	DocumentImpound *bool  `json:"document_impound,omitempty"`
	VehicleImpound  *bool  `json:"vehicle_impound,omitempty"`
	Search          string `json:"search,omitempty"`
}

// Session holds one screening or validation batch: the provider's results for
// a set of incidents plus the operator's per-challan selection state. The
// batch is transient and lives only for the duration of one workflow.
type Session struct {
	ID          string                      `json:"id"`
	Kind        Kind                        `json:"kind"`
	IncidentIDs []string                    `json:"incident_ids"`
	Results     []lifecycle.ScreeningResult `json:"results"`
	Selected    map[string]bool             `json:"selected"`
	CreatedAt   time.Time                   `json:"created_at"`
	CreatedBy   string                      `json:"created_by"`
}

// NewSession starts a batch with every returned result selected.
func NewSession(kind Kind, incidentIDs []string, results []lifecycle.ScreeningResult, createdBy string, now time.Time) *Session {
	selected := make(map[string]bool, len(results))
	for _, r := range results {
		selected[r.ChallanNumber] = true
	}
	return &Session{
		ID:          uuid.Must(uuid.NewV4()).String(),
		Kind:        kind,
		IncidentIDs: incidentIDs,
		Results:     results,
		Selected:    selected,
		CreatedAt:   now,
		CreatedBy:   createdBy,
	}
}

func (f Filter) matches(r lifecycle.ScreeningResult) bool {
	if f.State != "" && !strings.EqualFold(f.State, r.State) {
		return false
	}
	if f.VirtualStatus != "" && !strings.EqualFold(f.VirtualStatus, r.VirtualStatus) {
		return false
	}
	if f.Disposed != nil && *f.Disposed != r.Disposed {
		return false
	}
	if f.DocumentImpound != nil && *f.DocumentImpound != r.DocumentImpound {
		return false
	}
	if f.VehicleImpound != nil && *f.VehicleImpound != r.VehicleImpound {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		haystack := strings.ToLower(strings.Join([]string{
			r.ViolaterName, r.ChallanNumber, r.State, r.Offence, r.Place, r.RTOName,
		}, "\x00"))
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

// Visible returns the rows the filter lets through, in result order.
func (s *Session) Visible(f Filter) []lifecycle.ScreeningResult {
	out := make([]lifecycle.ScreeningResult, 0, len(s.Results))
	for _, r := range s.Results {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Toggle flips the selection of a single challan. Unknown challans are
// ignored rather than added.
func (s *Session) Toggle(challanNumber string) {
	if _, ok := s.Selected[challanNumber]; ok {
		s.Selected[challanNumber] = !s.Selected[challanNumber]
	}
}

// ToggleAll acts only on the currently visible rows: if every one of them is
// selected it clears them, otherwise it selects them all. Selection state of
// rows outside the filter is left alone either way. The all-selected check is
// a set comparison over the visible ids, not a length comparison, so two
// different sets of equal size cannot be confused.
func (s *Session) ToggleAll(f Filter) {
	visible := s.Visible(f)
	if len(visible) == 0 {
		return
	}
	allSelected := true
	for _, r := range visible {
		if !s.Selected[r.ChallanNumber] {
			allSelected = false
			break
		}
	}
	for _, r := range visible {
		s.Selected[r.ChallanNumber] = !allSelected
	}
}

// SelectedChallans lists the challans currently checked, sorted for stable
// output.
func (s *Session) SelectedChallans() []string {
	out := make([]string, 0, len(s.Selected))
	for ch, on := range s.Selected {
		if on {
			out = append(out, ch)
		}
	}
	sort.Strings(out)
	return out
}

// Confirm ends the workflow and hands back exactly the challans the operator
// left checked. Translating the confirmation into queue moves is the
// caller's job; the session itself mutates nothing else.
func (s *Session) Confirm() []string {
	return s.SelectedChallans()
}

func (s *Session) clone() *Session {
	cp := *s
	cp.IncidentIDs = append([]string(nil), s.IncidentIDs...)
	cp.Results = append([]lifecycle.ScreeningResult(nil), s.Results...)
	cp.Selected = make(map[string]bool, len(s.Selected))
	for ch, on := range s.Selected {
		cp.Selected[ch] = on
	}
	return &cp
}

// ResultByChallan finds the batch row for a challan, if present.
func (s *Session) ResultByChallan(challanNumber string) (lifecycle.ScreeningResult, bool) {
	for _, r := range s.Results {
		if r.ChallanNumber == challanNumber {
			return r, true
		}
	}
	return lifecycle.ScreeningResult{}, false
}
