package lifecycle

import "slices"

// TaskStatus is the status vocabulary of a Task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskStreaming TaskStatus = "streaming"
	TaskReview    TaskStatus = "review"
	TaskApproved  TaskStatus = "approved"
	TaskRejected  TaskStatus = "rejected"
	TaskFailed    TaskStatus = "failed"
)

// TaskStatuses lists every TaskStatus in lifecycle order.
var TaskStatuses = []TaskStatus{
	TaskQueued, TaskAssigned, TaskRunning, TaskStreaming,
	TaskReview, TaskApproved, TaskRejected, TaskFailed,
}

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) Valid() bool { return slices.Contains(TaskStatuses, s) }

func (s TaskStatus) IsTerminal() bool {
	return s == TaskApproved || s == TaskRejected || s == TaskFailed
}

// IsExecuting reports whether the engine is producing output.
func (s TaskStatus) IsExecuting() bool {
	return s == TaskRunning || s == TaskStreaming
}

func ParseTaskStatus(v string) (TaskStatus, error) {
	s := TaskStatus(v)
	if !s.Valid() {
		return "", &UnmappedStatusError{Table: "task status", Value: v}
	}
	return s, nil
}

// engineTransitions holds the forward edges the execution engine may report.
// failed is added for every non-terminal state in CanEngineMove.
var engineTransitions = map[TaskStatus][]TaskStatus{
	TaskQueued:    {TaskAssigned, TaskRunning, TaskStreaming},
	TaskAssigned:  {TaskRunning, TaskStreaming},
	TaskRunning:   {TaskStreaming, TaskReview},
	TaskStreaming: {TaskReview},
}

// CanEngineMove reports whether the engine may move a task from one status to
// another. Re-reporting the current non-terminal status is allowed so that
// redelivered reports are harmless.
func CanEngineMove(from, to TaskStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to || to == TaskFailed {
		return true
	}
	return slices.Contains(engineTransitions[from], to)
}

// ReviewAction is the operator decision on a task in review.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approved"
	ReviewReject  ReviewAction = "rejected"
)

func ParseReviewAction(v string) (ReviewAction, error) {
	switch a := ReviewAction(v); a {
	case ReviewApprove, ReviewReject:
		return a, nil
	}
	return "", &UnmappedStatusError{Table: "review action", Value: v}
}

// Outcome is the TaskStatus the action resolves to.
func (a ReviewAction) Outcome() TaskStatus {
	if a == ReviewApprove {
		return TaskApproved
	}
	return TaskRejected
}
