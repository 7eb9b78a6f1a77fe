package audit

import "time"

// Actions recorded in the audit log. They mirror the event bus topics.
const (
	ActionModelSwitched  = "model.switched"
	ActionQueryCompleted = "query.completed"
)

// Entry is one audit log row. Rows are append-only; once written they are
// never modified or deleted.
type Entry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Model     string    `json:"model"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// SwitchEvent is the payload published when the active model changes.
type SwitchEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
	PID  int    `json:"pid"`
}

// QueryEvent is the payload published after a completed query.
type QueryEvent struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}
