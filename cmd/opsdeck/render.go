package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/net/http2"

	"github.com/ascentxr/opsdeck/internal/console"
	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/projector"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
)

var columnColors = map[projector.Column]*color.Color{
	projector.ColumnQueued:     color.New(color.FgWhite, color.Bold),
	projector.ColumnInProgress: color.New(color.FgCyan, color.Bold),
	projector.ColumnReview:     color.New(color.FgYellow, color.Bold),
	projector.ColumnDone:       color.New(color.FgGreen, color.Bold),
	projector.ColumnFailed:     color.New(color.FgRed, color.Bold),
}

var entryColors = map[lifecycle.EntryStatus]*color.Color{
	lifecycle.EntryPending:   color.New(color.FgWhite),
	lifecycle.EntryScheduled: color.New(color.FgBlue),
	lifecycle.EntryRunning:   color.New(color.FgCyan),
	lifecycle.EntryCompleted: color.New(color.FgGreen),
	lifecycle.EntryFailed:    color.New(color.FgRed),
	lifecycle.EntrySkipped:   color.New(color.Faint),
}

func printBoard(w io.Writer, b projector.Board) {
	for _, col := range projector.Columns {
		cards := b[col]
		columnColors[col].Fprintf(w, "%s (%d)\n", strings.ToUpper(string(col)), len(cards))
		for _, t := range cards {
			fmt.Fprintf(w, "  %s  %-10s %-16s %s\n", t.ID, t.Status, t.AgentID, t.Title)
		}
		fmt.Fprintln(w)
	}
}

func printPlan(w io.Writer, p *skillcalendar.Plan, s *skillcalendar.PlanStats) {
	color.New(color.Bold).Fprintf(w, "%s", p.Name)
	fmt.Fprintf(w, "  %s  [%s]  %d%% of %d entries", p.ID, p.Status, s.Progress, s.Total)
	if s.EarliestDate != "" {
		fmt.Fprintf(w, "  %s..%s", s.EarliestDate, s.LatestDate)
	}
	fmt.Fprintln(w)
	for _, ph := range s.Phases {
		fmt.Fprintf(w, "  %-20s %d/%d\n", ph.Phase, ph.Completed, ph.Total)
	}
}

func printCells(w io.Writer, cells []console.Cell) {
	day := ""
	for _, c := range cells {
		e := c.Entry
		if e.ScheduledDate != day {
			day = e.ScheduledDate
			color.New(color.Bold).Fprintln(w, day)
		}
		title := e.TitleOverride
		if title == "" {
			title = e.SkillID
		}
		live := ""
		if c.Live {
			live = " *"
		}
		fmt.Fprintf(w, "  %s  ", e.ID)
		entryColors[c.Display].Fprintf(w, "%-10s", c.Display)
		fmt.Fprintf(w, " P%d %s%s\n", e.Priority, title, live)
	}
}

func printUpdate(w io.Writer, u *eventbus.TaskUpdate) {
	c := color.New(color.FgCyan)
	switch u.Status {
	case lifecycle.TaskReview, lifecycle.TaskApproved:
		c = color.New(color.FgGreen)
	case lifecycle.TaskFailed, lifecycle.TaskRejected:
		c = color.New(color.FgRed)
	}
	c.Fprintf(w, "%s %-10s", u.At.Format("15:04:05"), u.Status)
	fmt.Fprintf(w, " %s (%s) seq=%d", u.TaskID, u.AgentID, u.Seq)
	if u.Error != nil {
		fmt.Fprintf(w, " error=%q", *u.Error)
	}
	fmt.Fprintln(w)
}

// newStreamingHTTPClient speaks cleartext HTTP/2 to http:// servers, which
// the server accepts through h2c, and TLS HTTP/2 otherwise.
func newStreamingHTTPClient() *http.Client {
	if !strings.HasPrefix(*serverURL, "http://") {
		return http.DefaultClient
	}
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
