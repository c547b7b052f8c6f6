package projector

import (
	"github.com/ascentxr/opsdeck/internal/task"
)

// Board holds the tasks of every column in the order they were given.
type Board map[Column][]*task.Task

// BuildBoard groups tasks by column. It fails on the first unmapped status
// instead of dropping the task.
func BuildBoard(tasks []*task.Task) (Board, error) {
	b := make(Board, len(Columns))
	for _, c := range Columns {
		b[c] = []*task.Task{}
	}
	for _, t := range tasks {
		c, err := KanbanColumn(t.Status)
		if err != nil {
			return nil, err
		}
		b[c] = append(b[c], t)
	}
	return b, nil
}

// Counts returns the number of cards per column.
func (b Board) Counts() map[Column]int {
	out := make(map[Column]int, len(b))
	for c, ts := range b {
		out[c] = len(ts)
	}
	return out
}
