package agentworker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"

	"github.com/ascentxr/opsdeck/internal/task"
)

// Output is what an executor produced for one task. Result holds whatever
// was not already emitted as a streaming delta.
type Output struct {
	Result     string
	TokensUsed *int64
}

// Executor runs the prompt of a task. emit sends partial output while the
// task is still executing.
type Executor interface {
	Execute(ctx context.Context, t *task.Task, emit func(delta string) error) (*Output, error)
}

const systemPrompt = "You are an operations agent for an online education company. " +
	"Produce the requested deliverable as clear, actionable Markdown. Do not ask follow-up questions."

// ClaudeExecutor runs tasks through the Claude agent SDK. Every tool use is
// denied.
type ClaudeExecutor struct {
	WorkDir  string
	MaxTurns int
	Timeout  time.Duration
}

func (e *ClaudeExecutor) Execute(ctx context.Context, t *task.Task, _ func(string) error) (*Output, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	maxTurns := e.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt: systemPrompt,
		Cwd:          e.WorkDir,
		MaxTurns:     &maxTurns,
		CanUseTool: func(toolName string, _ map[string]any, _ claudeagent.ToolPermissionContext) (claudeagent.PermissionResult, error) {
			return claudeagent.PermissionResultDeny{Message: "tools are disabled for " + toolName}, nil
		},
	}
	result, err := claudeagent.RunQuerySync(ctx, t.Prompt, opts)
	if err != nil {
		return nil, err
	}
	if result.Result == nil {
		return nil, errors.New("agent returned no result")
	}
	if result.Result.IsError {
		msg := result.Result.Result
		if msg == "" {
			msg = "agent returned an error"
		}
		return nil, errors.New(msg)
	}
	return &Output{Result: result.Result.Result}, nil
}

// SimulatedExecutor streams a canned deliverable. It stands in for a real
// agent in demos and tests.
type SimulatedExecutor struct {
	Step time.Duration
	Fail bool
}

func (e *SimulatedExecutor) Execute(ctx context.Context, t *task.Task, emit func(string) error) (*Output, error) {
	sections := []string{
		fmt.Sprintf("# %s\n\n", t.Title),
		"## Findings\n\n- Reviewed current materials.\n- Identified three improvement areas.\n\n",
	}
	for _, s := range sections {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.Step):
		}
		if err := emit(s); err != nil {
			return nil, err
		}
	}
	if e.Fail {
		return nil, fmt.Errorf("simulated failure for %s", t.ID)
	}
	tokens := int64(len(strings.Fields(t.Prompt)) * 4)
	return &Output{Result: "## Next steps\n\n1. Review and approve.\n", TokensUsed: &tokens}, nil
}
