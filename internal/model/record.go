package model

import "time"

// Record is the archived form of an ended interview.
type Record struct {
	SessionID string    `json:"session_id"`
	Role      JobRole   `json:"role"`
	Mode      Mode      `json:"mode"`
	Settings  Settings  `json:"settings"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"end_reason"`
	Questions int       `json:"questions"`
	Turns     []Turn    `json:"turns"`
	Feedback  Feedback  `json:"feedback"`
}

func (r Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
