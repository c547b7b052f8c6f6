// Package projector maps lifecycle statuses onto what the board and the
// calendar show. Every function is pure.
package projector

import (
	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

// Column is a kanban column id.
type Column string

const (
	ColumnQueued     Column = "queued"
	ColumnInProgress Column = "in_progress"
	ColumnReview     Column = "review"
	ColumnDone       Column = "done"
	ColumnFailed     Column = "failed"
)

// Columns lists the board columns left to right.
var Columns = []Column{ColumnQueued, ColumnInProgress, ColumnReview, ColumnDone, ColumnFailed}

var kanban = map[lifecycle.TaskStatus]Column{
	lifecycle.TaskQueued:    ColumnQueued,
	lifecycle.TaskAssigned:  ColumnQueued,
	lifecycle.TaskRunning:   ColumnInProgress,
	lifecycle.TaskStreaming: ColumnInProgress,
	lifecycle.TaskReview:    ColumnReview,
	lifecycle.TaskApproved:  ColumnDone,
	lifecycle.TaskRejected:  ColumnFailed,
	lifecycle.TaskFailed:    ColumnFailed,
}

// KanbanColumn places a task status on the board. An unknown status is an
// UnmappedStatusError, never a default column.
func KanbanColumn(s lifecycle.TaskStatus) (Column, error) {
	c, ok := kanban[s]
	if !ok {
		return "", &lifecycle.UnmappedStatusError{Table: "kanban column", Value: string(s)}
	}
	return c, nil
}

// DisplayStatus is the calendar state of an entry. A live overlay status,
// when present, wins over the stored entry status and is translated into the
// entry vocabulary.
func DisplayStatus(entry lifecycle.EntryStatus, overlay *lifecycle.TaskStatus) (lifecycle.EntryStatus, error) {
	if overlay == nil {
		if !entry.Valid() {
			return "", &lifecycle.UnmappedStatusError{Table: "entry status", Value: string(entry)}
		}
		return entry, nil
	}
	return lifecycle.EntryStatusForTask(*overlay)
}

// MoveCommand turns dragging a card into a review decision. Only cards in
// review can move, and only to done or failed.
func MoveCommand(from lifecycle.TaskStatus, to Column) (lifecycle.ReviewAction, error) {
	if _, err := KanbanColumn(from); err != nil {
		return "", err
	}
	if from == lifecycle.TaskReview {
		switch to {
		case ColumnDone:
			return lifecycle.ReviewApprove, nil
		case ColumnFailed:
			return lifecycle.ReviewReject, nil
		}
	}
	return "", &lifecycle.InvalidTransitionError{Resource: "task", From: string(from), Action: "move to " + string(to)}
}
