package workflow

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

type Workflow struct {
	ID           string    `json:"id" yaml:"id"`
	Slug         string    `json:"slug" yaml:"slug"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	BusinessArea string    `json:"business_area,omitempty" yaml:"business_area,omitempty"`
	Steps        []Step    `json:"steps" yaml:"steps"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

type Step struct {
	Order   int    `json:"order" yaml:"order"`
	SkillID string `json:"skill_id" yaml:"skill_id"`
	Name    string `json:"name" yaml:"name"`
	AgentID string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
}

// Normalize sorts steps by order and checks that the orders are exactly
// 1..n, so step numbers can be used as 1-based indexes.
func (w *Workflow) Normalize() error {
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", w.ID)
	}
	slices.SortStableFunc(w.Steps, func(a, b Step) int { return cmp.Compare(a.Order, b.Order) })
	for i, st := range w.Steps {
		if st.Order != i+1 {
			return fmt.Errorf("workflow %s: step orders must be 1..%d, got %d at position %d", w.ID, len(w.Steps), st.Order, i+1)
		}
		if st.SkillID == "" {
			return fmt.Errorf("workflow %s: step %d has no skill", w.ID, st.Order)
		}
	}
	return nil
}
