package agent

import "time"

// transitions is the lifecycle table. completed has no outgoing edges.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusPaused:    {StatusRunning, StatusCancelled},
	StatusFailed:    {StatusQueued},
	StatusCancelled: {StatusQueued},
	StatusCompleted: nil,
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStates returns the states reachable from s in one transition.
func NextStates(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// Transition returns a copy of r moved to status to. The argument is never
// modified. Illegal transitions return r unchanged and false.
//
// A legal transition appends exactly one timeline entry stamped now, sets
// EndTime when entering a terminal state and clears EndTime and Error when
// leaving one.
func Transition(r Record, to Status, now time.Time) (Record, bool) {
	if !CanTransition(r.Status, to) {
		return r, false
	}
	return move(r, to, now), true
}

// Force records a status change reported by the platform even when the table
// has no such edge, keeping the timeline and EndTime consistent. A report of
// the current status returns r unchanged and false.
func Force(r Record, to Status, now time.Time) (Record, bool) {
	if r.Status == to || !to.IsValid() {
		return r, false
	}
	return move(r, to, now), true
}

func move(r Record, to Status, now time.Time) Record {
	next := r.Clone()
	next.Status = to
	next.Timeline = append(next.Timeline, TimelineEntry{State: to, Timestamp: now})

	switch {
	case to.IsTerminal():
		end := now
		next.EndTime = &end
	case r.Status.IsTerminal():
		next.EndTime = nil
		next.Error = nil
		next.Quality = nil
	}
	if to != StatusFailed {
		next.Error = nil
	}
	return next
}

// Fail moves a running agent to failed and records the failure.
func Fail(r Record, failure Failure, now time.Time) (Record, bool) {
	next, ok := Transition(r, StatusFailed, now)
	if !ok {
		return r, false
	}
	next.Error = &failure
	return next, true
}

// Complete moves a running agent to completed, attaching the quality outcome
// when one is known.
func Complete(r Record, q *Quality, now time.Time) (Record, bool) {
	next, ok := Transition(r, StatusCompleted, now)
	if !ok {
		return r, false
	}
	if q != nil {
		qc := *q
		next.Quality = &qc
	}
	return next, true
}
