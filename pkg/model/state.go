package model

// JobState represents the lifecycle state of a Job.
type JobState string

const (
	JobStatePending  JobState = "PENDING"
	JobStateAssigned JobState = "ASSIGNED"
	JobStateFinished JobState = "FINISHED"
	JobStateFailed   JobState = "FAILED"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateFinished, JobStateFailed:
		return true
	}
	return false
}

// ValidJobTransitions defines the allowed state transitions for Jobs.
var ValidJobTransitions = map[JobState][]JobState{
	JobStatePending:  {JobStateAssigned, JobStateFailed},
	JobStateAssigned: {JobStateFinished, JobStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AgentState represents the lifecycle state of an Agent process.
type AgentState string

const (
	AgentStateRunning AgentState = "RUNNING"
	AgentStateReaped  AgentState = "REAPED"
)

// String returns the string representation of the agent state.
func (s AgentState) String() string {
	return string(s)
}
