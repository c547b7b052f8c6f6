package skillcalendar

import (
	"cmp"
	"math"
	"slices"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

type PhaseStats struct {
	Phase     string `json:"phase"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Running   int    `json:"running"`
}

type PlanStats struct {
	Total        int          `json:"total"`
	Pending      int          `json:"pending"`
	Scheduled    int          `json:"scheduled"`
	Running      int          `json:"running"`
	Completed    int          `json:"completed"`
	Failed       int          `json:"failed"`
	Skipped      int          `json:"skipped"`
	TotalPhases  int          `json:"total_phases"`
	EarliestDate string       `json:"earliest_date,omitempty"`
	LatestDate   string       `json:"latest_date,omitempty"`
	Progress     int          `json:"progress"`
	Phases       []PhaseStats `json:"phases"`
}

// ComputePlanStats derives plan aggregates from its entries. It is recomputed
// on every call and never stored.
func ComputePlanStats(entries []*Entry) PlanStats {
	st := PlanStats{Phases: []PhaseStats{}}
	type phaseAcc struct {
		PhaseStats
		earliest string
	}
	phases := map[string]*phaseAcc{}

	for _, e := range entries {
		st.Total++
		switch e.Status {
		case lifecycle.EntryPending:
			st.Pending++
		case lifecycle.EntryScheduled:
			st.Scheduled++
		case lifecycle.EntryRunning:
			st.Running++
		case lifecycle.EntryCompleted:
			st.Completed++
		case lifecycle.EntryFailed:
			st.Failed++
		case lifecycle.EntrySkipped:
			st.Skipped++
		}
		if st.EarliestDate == "" || e.ScheduledDate < st.EarliestDate {
			st.EarliestDate = e.ScheduledDate
		}
		if e.ScheduledDate > st.LatestDate {
			st.LatestDate = e.ScheduledDate
		}

		if e.Phase == "" {
			continue
		}
		p, ok := phases[e.Phase]
		if !ok {
			p = &phaseAcc{PhaseStats: PhaseStats{Phase: e.Phase}, earliest: e.ScheduledDate}
			phases[e.Phase] = p
		}
		p.Total++
		switch e.Status {
		case lifecycle.EntryCompleted:
			p.Completed++
		case lifecycle.EntryRunning:
			p.Running++
		}
		p.earliest = min(p.earliest, e.ScheduledDate)
	}

	accs := make([]*phaseAcc, 0, len(phases))
	for _, p := range phases {
		accs = append(accs, p)
	}
	slices.SortFunc(accs, func(a, b *phaseAcc) int {
		return cmp.Or(cmp.Compare(a.earliest, b.earliest), cmp.Compare(a.Phase, b.Phase))
	})
	for _, p := range accs {
		st.Phases = append(st.Phases, p.PhaseStats)
	}
	st.TotalPhases = len(st.Phases)
	if st.Total > 0 {
		st.Progress = int(math.Round(float64(st.Completed) / float64(st.Total) * 100))
	}
	return st
}

// SortEntries orders entries by date then day order. The sort is stable, so
// entries sharing both keep the order they arrived in.
func SortEntries(entries []*Entry) {
	slices.SortStableFunc(entries, func(a, b *Entry) int {
		return cmp.Or(cmp.Compare(a.ScheduledDate, b.ScheduledDate), cmp.Compare(a.DayOrder, b.DayOrder))
	})
}
