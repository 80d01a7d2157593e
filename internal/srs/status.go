package srs

// Status enumerates the card lifecycle states.
type Status string

const (
	// StatusNew marks a card that has never been reviewed.
	StatusNew Status = "NEW"
	// StatusLearning marks a card still building its first intervals,
	// including cards knocked back by a lapse.
	StatusLearning Status = "LEARNING"
	// StatusReview marks a graduated card on the long-interval schedule.
	StatusReview Status = "REVIEW"
	// StatusSuspended excludes a card from scheduling entirely. It is set
	// and cleared outside this engine; reviews against it are rejected
	// before the state machine runs.
	StatusSuspended Status = "SUSPENDED"
)

const (
	graduationRepetitions = 2
	graduationInterval    = 1
)

// NextStatus computes the lifecycle transition driven by one scheduler
// outcome. Any lapse drops the card to LEARNING regardless of prior status.
// A NEW card graduates out of NEW on its first success, and a LEARNING card
// reaches REVIEW once it has two consecutive successes with a real interval.
func NextStatus(current Status, newRepetitions, newInterval int, isLapse bool) Status {
	if isLapse {
		return StatusLearning
	}

	switch current {
	case StatusNew:
		return StatusLearning
	case StatusLearning:
		if newRepetitions >= graduationRepetitions && newInterval >= graduationInterval {
			return StatusReview
		}
		return StatusLearning
	case StatusReview:
		return StatusReview
	default:
		return current
	}
}
