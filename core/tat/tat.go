package tat

import (
	"math"
	"time"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// DefaultWindowDays is the total turn-around window used for the percentage
// scale. The business hardcodes 45 days; exceptions per incident type have no
// rule yet, so it is a single configurable constant.
const DefaultWindowDays = 45

// warningThresholdDays marks the start of the warning band, inclusive.
const warningThresholdDays = 7

type Result struct {
	DaysLeft   int     `json:"days_left"`
	Percentage float64 `json:"percentage"`
	Status     Status  `json:"status"`
}

// Compute derives the TAT view of a deadline at the given instant. It is a
// pure read; stored incident state is never touched.
func Compute(deadline, now time.Time) Result {
	return ComputeWithWindow(deadline, now, DefaultWindowDays)
}

func ComputeWithWindow(deadline, now time.Time, windowDays int) Result {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	daysLeft := int(math.Ceil(deadline.Sub(now).Hours() / 24))

	used := float64(windowDays - daysLeft)
	pct := used / float64(windowDays) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	status := StatusOK
	switch {
	case daysLeft <= 0:
		status = StatusCritical
	case daysLeft <= warningThresholdDays:
		status = StatusWarning
	}

	return Result{DaysLeft: daysLeft, Percentage: pct, Status: status}
}
