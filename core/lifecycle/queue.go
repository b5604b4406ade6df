package lifecycle

import "errors"

type Queue string

const (
	QueueNewIncidents   Queue = "newIncidents"
	QueueScreening      Queue = "screening"
	QueueLawyerAssigned Queue = "lawyerAssigned"
	QueueSettled        Queue = "settled"
	QueueNotSettled     Queue = "notSettled"
	QueueRefund         Queue = "refund"
)

var (
	ErrUnknownQueue      = errors.New("unknown queue")
	ErrSameQueue         = errors.New("target queue equals current queue")
	ErrIllegalTransition = errors.New("illegal queue transition")
)

// queueGraph is the legal-transition adjacency table. Refund is reachable only
// from the two settlement outcomes; settled, notSettled and refund take no
// further transition.
var queueGraph = map[Queue][]Queue{
	QueueNewIncidents:   {QueueScreening},
	QueueScreening:      {QueueLawyerAssigned},
	QueueLawyerAssigned: {QueueSettled, QueueNotSettled},
	QueueSettled:        {QueueRefund},
	QueueNotSettled:     {QueueRefund},
	QueueRefund:         {},
}

func (q Queue) Valid() bool {
	_, ok := queueGraph[q]
	return ok
}

// CanMoveTo reports whether the move from q to target is allowed. A move to
// the current queue is always rejected, everything else follows queueGraph.
func (q Queue) CanMoveTo(target Queue) error {
	if !q.Valid() || !target.Valid() {
		return ErrUnknownQueue
	}
	if q == target {
		return ErrSameQueue
	}
	for _, next := range queueGraph[q] {
		if next == target {
			return nil
		}
	}
	return ErrIllegalTransition
}

func AllQueues() []Queue {
	return []Queue{
		QueueNewIncidents,
		QueueScreening,
		QueueLawyerAssigned,
		QueueSettled,
		QueueNotSettled,
		QueueRefund,
	}
}
