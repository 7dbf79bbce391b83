package messagequeue

import "time"

// TaskCreatedPayload is the schema for a2a.tasks.created messages.
type TaskCreatedPayload struct {
	TaskID     string    `json:"task_id"`
	ProjectID  string    `json:"project_id"`
	AgentID    string    `json:"agent_id"`
	A2AAgentID string    `json:"a2a_agent_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskStatusPayload is the schema for a2a.tasks.status messages.
type TaskStatusPayload struct {
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	From      string    `json:"from"`
	Status    string    `json:"status"`
	Terminal  bool      `json:"terminal"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
