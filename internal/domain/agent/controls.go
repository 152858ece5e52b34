package agent

import (
	"fmt"
	"time"

	"github.com/Strob0t/forgetop/internal/domain"
)

// Control is a user-invokable lifecycle action.
type Control string

const (
	ControlPause  Control = "pause"
	ControlResume Control = "resume"
	ControlCancel Control = "cancel"
	ControlRetry  Control = "retry"
)

// AllControls lists every control in display order.
var AllControls = []Control{ControlPause, ControlResume, ControlCancel, ControlRetry}

// Target returns the status a control moves an agent to.
func (c Control) Target() Status {
	switch c {
	case ControlPause:
		return StatusPaused
	case ControlResume:
		return StatusRunning
	case ControlCancel:
		return StatusCancelled
	case ControlRetry:
		return StatusQueued
	}
	return ""
}

// ParseControl converts a string into a Control.
func ParseControl(s string) (Control, error) {
	c := Control(s)
	if c.Target() == "" {
		return "", fmt.Errorf("unknown control %q: %w", s, domain.ErrValidation)
	}
	return c, nil
}

// ControlSet is the set of controls enabled for a status.
type ControlSet struct {
	Pause  bool `json:"pause"`
	Resume bool `json:"resume"`
	Cancel bool `json:"cancel"`
	Retry  bool `json:"retry"`
}

// Controls returns the enabled controls for status s. It is a pure function
// of the status; completed exposes nothing.
func Controls(s Status) ControlSet {
	return ControlSet{
		Pause:  s == StatusRunning,
		Resume: s == StatusPaused,
		Cancel: s == StatusRunning || s == StatusQueued || s == StatusPaused,
		Retry:  s == StatusFailed || s == StatusCancelled,
	}
}

// Enabled reports whether c is in the set.
func (cs ControlSet) Enabled(c Control) bool {
	switch c {
	case ControlPause:
		return cs.Pause
	case ControlResume:
		return cs.Resume
	case ControlCancel:
		return cs.Cancel
	case ControlRetry:
		return cs.Retry
	}
	return false
}

// List returns the enabled controls in display order.
func (cs ControlSet) List() []Control {
	var out []Control
	for _, c := range AllControls {
		if cs.Enabled(c) {
			out = append(out, c)
		}
	}
	return out
}

// Apply invokes control c on r. A disabled control is a no-op: the returned
// record equals r and ok is false.
func Apply(r Record, c Control, now time.Time) (Record, bool) {
	if !Controls(r.Status).Enabled(c) {
		return r, false
	}
	return Transition(r, c.Target(), now)
}
