// Package console is the operator side of the dashboard: a REST client,
// the command controller with its local guards, and the live update feed.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/skill"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/internal/workflow"
	"github.com/ascentxr/opsdeck/internal/workflowrun"
	"github.com/ascentxr/opsdeck/pkg/cerr"
)

const DefaultCommandTimeout = 15 * time.Second

// CommandFailureError is a command that did not complete: the server was
// unreachable, answered with an error, or did not answer in time. The record
// keeps its last confirmed state.
type CommandFailureError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *CommandFailureError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: no response in time: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandFailureError) Unwrap() error { return e.Err }

// Client talks to the /api surface of the server.
type Client struct {
	baseURL        *url.URL
	apiKey         string
	http           *http.Client
	commandTimeout time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithCommandTimeout bounds every call. Zero keeps the default.
func WithCommandTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.commandTimeout = d
		}
	}
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/")
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	c := &Client{baseURL: u, apiKey: apiKey, http: http.DefaultClient, commandTimeout: DefaultCommandTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	u := c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/"), RawQuery: query.Encode()})
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &CommandFailureError{Op: op, Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandFailureError{Op: op, Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: err}
	}
	if resp.StatusCode >= 300 {
		return &CommandFailureError{Op: op, Err: decodeError(resp.StatusCode, data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &CommandFailureError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Do sends one JSON request under the command timeout. path is relative to
// the /api root.
func (c *Client) Do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.do(ctx, op, method, path, query, body, out)
}

func decodeError(status int, data []byte) error {
	var body cerr.HTTPError
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		return cerr.NewError(cerr.CodeFromHTTPStatus(status), strings.TrimSpace(string(data)), nil)
	}
	e := cerr.NewError(cerr.ParseCode(body.Code), body.Message, nil)
	for _, v := range body.Violations {
		e.AddViolation("", "", v)
	}
	return e
}

// Tasks

func (c *Client) ListTasks(ctx context.Context, f task.Filter) (*task.ListResponse, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.AgentID != "" {
		q.Set("agent_id", f.AgentID)
	}
	if f.BusinessArea != "" {
		q.Set("business_area", f.BusinessArea)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	var out task.ListResponse
	if err := c.do(ctx, "list tasks", http.MethodGet, "tasks", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTask(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	var out task.Task
	if err := c.do(ctx, "create task", http.MethodPost, "tasks", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var out task.Task
	if err := c.do(ctx, "get task", http.MethodGet, "tasks/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReviewTask(ctx context.Context, id string, action lifecycle.ReviewAction, reviewer, notes string) (*task.Task, error) {
	var out task.Task
	body := task.ReviewRequest{Action: string(action), ReviewedBy: reviewer, Notes: notes}
	if err := c.do(ctx, "review task", http.MethodPost, "tasks/"+url.PathEscape(id)+"/review", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetryTask(ctx context.Context, id string) (*task.Task, error) {
	var out task.Task
	if err := c.do(ctx, "retry task", http.MethodPost, "tasks/"+url.PathEscape(id)+"/retry", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Skills and workflows

func (c *Client) ListSkills(ctx context.Context, businessArea string) ([]*skill.Skill, error) {
	q := url.Values{}
	if businessArea != "" {
		q.Set("business_area", businessArea)
	}
	var out struct {
		Skills []*skill.Skill `json:"skills"`
	}
	if err := c.do(ctx, "list skills", http.MethodGet, "skills", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Skills, nil
}

func (c *Client) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	var out struct {
		Workflows []*workflow.Workflow `json:"workflows"`
	}
	if err := c.do(ctx, "list workflows", http.MethodGet, "workflows", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

// Skill calendar

func (c *Client) ListPlans(ctx context.Context, status skillcalendar.PlanStatus) ([]*skillcalendar.Plan, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out struct {
		Plans []*skillcalendar.Plan `json:"plans"`
	}
	if err := c.do(ctx, "list plans", http.MethodGet, "skill-calendar/plans", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}

func (c *Client) PlanStats(ctx context.Context, planID string) (*skillcalendar.PlanStats, error) {
	var out skillcalendar.PlanStats
	if err := c.do(ctx, "plan stats", http.MethodGet, "skill-calendar/plans/"+url.PathEscape(planID)+"/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListEntries(ctx context.Context, f skillcalendar.EntryFilter) ([]*skillcalendar.Entry, error) {
	q := url.Values{}
	if f.PlanID != "" {
		q.Set("plan_id", f.PlanID)
	}
	if f.Phase != "" {
		q.Set("phase", f.Phase)
	}
	if f.StartDate != "" {
		q.Set("start_date", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("end_date", f.EndDate)
	}
	if len(f.Statuses) > 0 {
		parts := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	return c.entries(ctx, "list entries", "skill-calendar/entries", q)
}

func (c *Client) UpcomingEntries(ctx context.Context, days int) ([]*skillcalendar.Entry, error) {
	return c.entries(ctx, "upcoming entries", "skill-calendar/entries/upcoming", url.Values{"days": {strconv.Itoa(days)}})
}

func (c *Client) entries(ctx context.Context, op, path string, q url.Values) ([]*skillcalendar.Entry, error) {
	var out struct {
		Entries []*skillcalendar.Entry `json:"entries"`
	}
	if err := c.do(ctx, op, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) GetEntry(ctx context.Context, id string) (*skillcalendar.Entry, error) {
	var out skillcalendar.Entry
	if err := c.do(ctx, "get entry", http.MethodGet, "skill-calendar/entries/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExecuteEntry(ctx context.Context, id string) (*skillcalendar.ExecuteResult, error) {
	var out skillcalendar.ExecuteResult
	if err := c.do(ctx, "execute entry", http.MethodPost, "skill-calendar/entries/"+url.PathEscape(id)+"/execute", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SkipEntry(ctx context.Context, id string) (*skillcalendar.Entry, error) {
	var out skillcalendar.Entry
	if err := c.do(ctx, "skip entry", http.MethodPost, "skill-calendar/entries/"+url.PathEscape(id)+"/skip", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Workflow runs

func (c *Client) StartRun(ctx context.Context, workflowID string, in workflowrun.StartInput) (*workflowrun.Run, error) {
	var out workflowrun.Run
	if err := c.do(ctx, "start run", http.MethodPost, "workflows/"+url.PathEscape(workflowID)+"/runs", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRun(ctx context.Context, id string) (*workflowrun.Run, error) {
	var out workflowrun.Run
	if err := c.do(ctx, "get run", http.MethodGet, "workflow-runs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRuns(ctx context.Context, status lifecycle.RunStatus) ([]*workflowrun.Run, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out struct {
		Runs []*workflowrun.Run `json:"runs"`
	}
	if err := c.do(ctx, "list runs", http.MethodGet, "workflow-runs", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// RunCommand posts advance, cancel, pause or resume for a run.
func (c *Client) RunCommand(ctx context.Context, id, command string) (*workflowrun.Run, error) {
	var out workflowrun.Run
	if err := c.do(ctx, command+" run", http.MethodPost, "workflow-runs/"+url.PathEscape(id)+"/"+command, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
