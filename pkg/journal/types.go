// Package journal persists reconciliation run history in a local SQLite
// database, one record per run and one per executed action. The journal is
// write-behind: a journal failure never affects the run it records.
package journal

import "time"

// Run is one recorded reconciliation run.
type Run struct {
	ID          string    `json:"id"`
	Requested   string    `json:"requested"` // rendered request summary
	State       string    `json:"state"`
	Changed     bool      `json:"changed"`
	Failed      bool      `json:"failed"`
	Msg         string    `json:"msg"`
	Handler     string    `json:"handler,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Action is one recorded backend action within a run.
type Action struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Backend   string        `json:"backend"`
	Operation string        `json:"operation"`
	Targets   string        `json:"targets"` // space-joined names
	Changed   bool          `json:"changed"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
}
