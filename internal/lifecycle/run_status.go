package lifecycle

import "slices"

// RunStatus is the status vocabulary of a workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
)

var RunStatuses = []RunStatus{RunRunning, RunPaused, RunCompleted, RunCancelled}

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) Valid() bool { return slices.Contains(RunStatuses, s) }

func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunCancelled
}

func ParseRunStatus(v string) (RunStatus, error) {
	s := RunStatus(v)
	if !s.Valid() {
		return "", &UnmappedStatusError{Table: "run status", Value: v}
	}
	return s, nil
}

// StepState is how a single step of a run is rendered in a progress indicator.
type StepState string

const (
	StepCompleted StepState = "completed"
	StepCurrent   StepState = "current"
	StepUpcoming  StepState = "upcoming"
)

func (s StepState) String() string { return string(s) }
