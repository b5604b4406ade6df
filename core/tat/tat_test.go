package tat

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestComputeWarningBand(t *testing.T) {
	res := Compute(now.Add(5*24*time.Hour), now)
	assert.Equal(t, 5, res.DaysLeft)
	assert.Equal(t, StatusWarning, res.Status)
	assert.InDelta(t, float64(45-5)/45*100, res.Percentage, 0.01)
}

func TestComputeOverdue(t *testing.T) {
	res := Compute(now.Add(-2*24*time.Hour), now)
	assert.Equal(t, -2, res.DaysLeft)
	assert.Equal(t, StatusCritical, res.Status)
	assert.Equal(t, 100.0, res.Percentage)
}

func TestComputeBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		deadline time.Time
		daysLeft int
		status   Status
	}{
		{"exactly due", now, 0, StatusCritical},
		{"one hour left rounds up to one day", now.Add(time.Hour), 1, StatusWarning},
		{"seven days is still warning", now.Add(7 * 24 * time.Hour), 7, StatusWarning},
		{"just past seven days is ok", now.Add(7*24*time.Hour + time.Hour), 8, StatusOK},
		{"full window", now.Add(45 * 24 * time.Hour), 45, StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(tt.deadline, now)
			assert.Equal(t, tt.daysLeft, res.DaysLeft)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestComputePercentageStaysInRange(t *testing.T) {
	for d := -90; d <= 90; d++ {
		res := Compute(now.Add(time.Duration(d)*24*time.Hour), now)
		assert.GreaterOrEqual(t, res.Percentage, 0.0, "days=%d", d)
		assert.LessOrEqual(t, res.Percentage, 100.0, "days=%d", d)

		if res.DaysLeft <= 0 {
			assert.Equal(t, StatusCritical, res.Status, "days=%d", d)
		} else if res.DaysLeft <= 7 {
			assert.Equal(t, StatusWarning, res.Status, "days=%d", d)
		} else {
			assert.Equal(t, StatusOK, res.Status, "days=%d", d)
		}
	}
}

func TestComputeWithWindowFallsBackToDefault(t *testing.T) {
	res := ComputeWithWindow(now.Add(45*24*time.Hour), now, 0)
	assert.Equal(t, 45, res.DaysLeft)
	assert.Equal(t, 0.0, math.Round(res.Percentage))
}
