package screening

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vahan-ops/core/lifecycle"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func sampleResults() []lifecycle.ScreeningResult {
	return []lifecycle.ScreeningResult{
		{ChallanNumber: "CH1", ViolaterName: "Ravi Kumar", State: "MH", Offence: "overspeeding", Disposed: false},
		{ChallanNumber: "CH2", ViolaterName: "Anita Desai", State: "KA", Offence: "signal jump", Disposed: true},
		{ChallanNumber: "CH3", ViolaterName: "Sunil Shah", State: "MH", Offence: "no parking", Disposed: false, VehicleImpound: true},
	}
}

func newSession() *Session {
	return NewSession(KindScreen, []string{"i1", "i2", "i3"}, sampleResults(), "ops1", now)
}

func TestNewSessionSelectsAll(t *testing.T) {
	s := newSession()
	assert.Equal(t, []string{"CH1", "CH2", "CH3"}, s.SelectedChallans())
}

func TestToggleSingle(t *testing.T) {
	s := newSession()
	s.Toggle("CH2")
	assert.Equal(t, []string{"CH1", "CH3"}, s.SelectedChallans())

	s.Toggle("CH2")
	assert.Equal(t, []string{"CH1", "CH2", "CH3"}, s.SelectedChallans())

	// Unknown challans are ignored, not added.
	s.Toggle("CH99")
	assert.Equal(t, []string{"CH1", "CH2", "CH3"}, s.SelectedChallans())
}

func TestFilterDoesNotTouchSelection(t *testing.T) {
	s := newSession()
	s.Toggle("CH1")

	disposed := true
	visible := s.Visible(Filter{Disposed: &disposed})
	require.Len(t, visible, 1)
	assert.Equal(t, "CH2", visible[0].ChallanNumber)

	// Narrowing the view changed nothing about the selection.
	assert.Equal(t, []string{"CH2", "CH3"}, s.SelectedChallans())
}

func TestSelectAllActsOnlyOnVisibleRows(t *testing.T) {
	s := newSession()
	// Operator deselects one row, then narrows to disposed only.
	s.Toggle("CH1")
	disposed := true
	f := Filter{Disposed: &disposed}

	// All visible rows (CH2) are selected, so toggle-all clears them.
	s.ToggleAll(f)
	assert.Equal(t, []string{"CH3"}, s.SelectedChallans())

	// Toggle-all again selects the visible set back.
	s.ToggleAll(f)
	assert.Equal(t, []string{"CH2", "CH3"}, s.SelectedChallans())

	// CH1, outside the filter, stayed deselected throughout.
	assert.False(t, s.Selected["CH1"])
}

func TestToggleAllMixedVisibleSelection(t *testing.T) {
	s := newSession()
	s.Toggle("CH1")

	state := "mh"
	f := Filter{State: state}
	// Visible: CH1 (off) and CH3 (on) -> not all selected -> select both.
	s.ToggleAll(f)
	assert.Equal(t, []string{"CH1", "CH2", "CH3"}, s.SelectedChallans())
}

func TestSearchIsCaseInsensitiveSubstring(t *testing.T) {
	s := newSession()
	visible := s.Visible(Filter{Search: "aNiTa"})
	require.Len(t, visible, 1)
	assert.Equal(t, "CH2", visible[0].ChallanNumber)

	visible = s.Visible(Filter{Search: "ch"})
	assert.Len(t, visible, 3)

	visible = s.Visible(Filter{Search: "no parking"})
	require.Len(t, visible, 1)
	assert.Equal(t, "CH3", visible[0].ChallanNumber)
}

func TestConfirmReturnsCheckedSubset(t *testing.T) {
	s := newSession()
	s.Toggle("CH3")
	assert.Equal(t, []string{"CH1", "CH2"}, s.Confirm())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	s := newSession()

	require.NoError(t, store.Save(ctx, s))
	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.SelectedChallans(), got.SelectedChallans())

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreGetReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	s := newSession()
	require.NoError(t, store.Save(ctx, s))

	first, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	second, err := store.Get(ctx, s.ID)
	require.NoError(t, err)

	// Mutating one copy must not leak into the other or into the store.
	first.Toggle("CH1")
	assert.Equal(t, []string{"CH1", "CH2", "CH3"}, second.SelectedChallans())

	stored, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"CH1", "CH2", "CH3"}, stored.SelectedChallans())

	// Saving the mutated copy is what publishes the change.
	require.NoError(t, store.Save(ctx, first))
	stored, err = store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"CH2", "CH3"}, stored.SelectedChallans())

	// The caller's own session stays detached after Save too.
	first.Toggle("CH2")
	stored, err = store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"CH2", "CH3"}, stored.SelectedChallans())
}
