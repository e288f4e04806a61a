package model

import "time"

// AgentInfo is the API view of a running agent process.
type AgentInfo struct {
	PID       int        `json:"pid"`
	Host      string     `json:"host"`
	JobID     string     `json:"job_id"`
	JobType   string     `json:"job_type"`
	State     AgentState `json:"state"`
	StartedAt time.Time  `json:"started_at"`
}
