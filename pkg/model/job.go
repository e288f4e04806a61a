package model

import "time"

// Job is a unit of analysis work. It is owned by the job queue until
// assigned, then jointly referenced by the agent that runs it.
type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`      // agent template name
	Exclusive bool      `json:"exclusive"` // derived from the template
	State     JobState  `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
