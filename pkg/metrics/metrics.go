package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BulkOperationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vahan",
		Name:      "bulk_operations_applied_total",
		Help:      "Incidents changed by bulk lifecycle operations.",
	}, []string{"operation"})

	BulkOperationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vahan",
		Name:      "bulk_operations_rejected_total",
		Help:      "Per-incident rejections inside bulk lifecycle operations.",
	}, []string{"operation", "reason"})

	ScreeningConfirms = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vahan",
		Name:      "screening_confirms_total",
		Help:      "Confirmed screening/validation workflows.",
	}, []string{"kind"})

	OverdueFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vahan",
		Name:      "tat_overdue_flagged_total",
		Help:      "Incidents flagged overdue by the TAT sweep.",
	})
)
