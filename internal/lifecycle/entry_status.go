package lifecycle

import "slices"

// EntryStatus is the status vocabulary of a skill calendar entry.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryScheduled EntryStatus = "scheduled"
	EntryRunning   EntryStatus = "running"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntrySkipped   EntryStatus = "skipped"
)

var EntryStatuses = []EntryStatus{
	EntryPending, EntryScheduled, EntryRunning, EntryCompleted, EntryFailed, EntrySkipped,
}

func (s EntryStatus) String() string { return string(s) }

func (s EntryStatus) Valid() bool { return slices.Contains(EntryStatuses, s) }

func (s EntryStatus) IsTerminal() bool {
	return s == EntryCompleted || s == EntrySkipped
}

// CanExecute is true from pending or scheduled, and from failed as a retry.
func (s EntryStatus) CanExecute() bool {
	return s == EntryPending || s == EntryScheduled || s == EntryFailed
}

func (s EntryStatus) CanSkip() bool {
	return s == EntryPending || s == EntryScheduled
}

func ParseEntryStatus(v string) (EntryStatus, error) {
	s := EntryStatus(v)
	if !s.Valid() {
		return "", &UnmappedStatusError{Table: "entry status", Value: v}
	}
	return s, nil
}

// EntryStatusForTask translates the status of the task executing an entry
// into the entry's own vocabulary.
func EntryStatusForTask(s TaskStatus) (EntryStatus, error) {
	switch s {
	case TaskQueued, TaskAssigned, TaskRunning, TaskStreaming:
		return EntryRunning, nil
	case TaskReview, TaskApproved:
		return EntryCompleted, nil
	case TaskRejected, TaskFailed:
		return EntryFailed, nil
	}
	return "", &UnmappedStatusError{Table: "task to entry", Value: string(s)}
}
