package procedure

import (
	"fmt"
	"time"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
)

// transitions lists, per allowed status change, the stock movements applied
// to every item of the procedure, in order.
var transitions = map[Status]map[Status][]inventory.ActivityType{
	StatusScheduled: {
		StatusApproved:  {inventory.ActivityRelease, inventory.ActivityConsumption},
		StatusRejected:  {inventory.ActivityRelease},
		StatusCancelled: {inventory.ActivityRelease},
	},
	StatusCreated: {
		StatusApproved:  {inventory.ActivityConsumption},
		StatusRejected:  nil,
		StatusCancelled: nil,
	},
	StatusApproved: {
		StatusCancelled: {inventory.ActivityReturn},
		StatusCompleted: nil,
	},
}

// Plan returns the movements needed to take a procedure from one status to
// another, or ErrInvalidTransition. An empty plan changes the status only.
func Plan(from, to Status) ([]inventory.ActivityType, error) {
	next, ok := transitions[from]
	if !ok {
		return nil, fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
	}
	moves, ok := next[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return moves, nil
}

// initialStatus approves procedures dated today or earlier, consuming stock
// at once, and schedules later ones, reserving their stock. Drafts start as
// criada and hold no stock until approved.
func initialStatus(scheduledFor, today time.Time, draft bool) Status {
	switch {
	case draft:
		return StatusCreated
	case dateOf(scheduledFor).After(dateOf(today)):
		return StatusScheduled
	}
	return StatusApproved
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// movementFor is the movement a new procedure applies to each allocation.
// A draft applies none.
func movementFor(s Status) (inventory.ActivityType, bool) {
	switch s {
	case StatusCreated:
		return "", false
	case StatusScheduled:
		return inventory.ActivityReservation, true
	}
	return inventory.ActivityConsumption, true
}
