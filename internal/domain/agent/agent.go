// Package agent defines the Agent Record entity, its lifecycle state machine
// and the query engine the dashboard views consume.
package agent

import "time"

// Status represents the current lifecycle state of an agent.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions other than retry.
// completed is the success terminal; failed and cancelled are failure terminals.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Tokens holds token consumption for a single agent.
type Tokens struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// Total returns input plus output tokens.
func (t Tokens) Total() int64 { return t.Input + t.Output }

// Quality is the quality-gate outcome attached after completion.
type Quality struct {
	Score float64 `json:"score"`
	Pass  bool    `json:"pass"`
}

// TimelineEntry records one lifecycle transition.
type TimelineEntry struct {
	State     Status    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Failure describes why an agent failed.
type Failure struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Record represents one unit of automated work tracked by the dashboard.
type Record struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Model     string          `json:"model"`
	Status    Status          `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	Tokens    Tokens          `json:"tokens"`
	CostUSD   float64         `json:"cost_usd"`
	Quality   *Quality        `json:"quality,omitempty"`
	Timeline  []TimelineEntry `json:"timeline,omitempty"`
	Error     *Failure        `json:"error,omitempty"`
}

// NewRecord creates a queued record. The timeline starts empty; every later
// transition appends one entry.
func NewRecord(id, name, model string, now time.Time) Record {
	return Record{
		ID:        id,
		Name:      name,
		Model:     model,
		Status:    StatusQueued,
		StartTime: now,
	}
}

// DisplayName returns Name, falling back to ID.
func (r *Record) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// Duration returns the elapsed run time, measured to EndTime when set.
func (r *Record) Duration(now time.Time) time.Duration {
	end := now
	if r.EndTime != nil {
		end = *r.EndTime
	}
	if end.Before(r.StartTime) {
		return 0
	}
	return end.Sub(r.StartTime)
}

// Clone returns a deep copy so updates never share backing storage with
// previously published snapshots.
func (r Record) Clone() Record {
	c := r
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.Quality != nil {
		q := *r.Quality
		c.Quality = &q
	}
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	if r.Timeline != nil {
		c.Timeline = make([]TimelineEntry, len(r.Timeline))
		copy(c.Timeline, r.Timeline)
	}
	return c
}
