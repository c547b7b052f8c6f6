package skill

import (
	"fmt"
	"strings"
	"time"
)

type Skill struct {
	ID                       string    `json:"id" yaml:"id"`
	Slug                     string    `json:"slug" yaml:"slug"`
	Name                     string    `json:"name" yaml:"name"`
	Category                 string    `json:"category,omitempty" yaml:"category,omitempty"`
	BusinessArea             string    `json:"business_area" yaml:"business_area"`
	Content                  string    `json:"content" yaml:"content"`
	ApplicableAgents         []string  `json:"applicable_agents,omitempty" yaml:"applicable_agents,omitempty"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes,omitempty" yaml:"estimated_duration_minutes,omitempty"`
	UpdatedAt                time.Time `json:"updated_at" yaml:"updated_at"`
}

// DefaultAgent is the agent used when an entry or step names none.
func (s *Skill) DefaultAgent() string {
	if len(s.ApplicableAgents) == 0 {
		return ""
	}
	return s.ApplicableAgents[0]
}

// PriorResult is the output of an earlier workflow step fed into a later one.
type PriorResult struct {
	Step   int
	Skill  string
	Result string
}

type PromptInput struct {
	CompanyContext         string
	PriorResults           []PriorResult
	AdditionalInstructions string
}

// BuildPrompt renders the instructions sent to the agent for one execution
// of the skill.
func (s *Skill) BuildPrompt(in PromptInput) string {
	var b strings.Builder
	area := s.BusinessArea
	if area == "" {
		area = "business"
	}
	fmt.Fprintf(&b, "You are executing the %q %s skill.\n", s.Name, area)
	b.WriteString("Follow the framework below precisely and produce actionable output.\n\n")
	b.WriteString("--- SKILL FRAMEWORK ---\n")
	b.WriteString(strings.TrimSpace(s.Content))
	b.WriteString("\n--- END SKILL FRAMEWORK ---\n")

	if c := strings.TrimSpace(in.CompanyContext); c != "" {
		b.WriteString("\n--- COMPANY CONTEXT ---\n")
		b.WriteString(c)
		b.WriteString("\n--- END COMPANY CONTEXT ---\n")
	}
	if len(in.PriorResults) > 0 {
		b.WriteString("\n--- PRIOR WORKFLOW STEP RESULTS ---\n")
		b.WriteString("Build upon these results from earlier steps in this workflow:\n")
		for _, p := range in.PriorResults {
			res := p.Result
			if res == "" {
				res = "(no result yet)"
			}
			fmt.Fprintf(&b, "\nStep %d - %s:\n%s\n", p.Step, p.Skill, res)
		}
		b.WriteString("--- END PRIOR RESULTS ---\n")
	}
	if in.AdditionalInstructions != "" {
		fmt.Fprintf(&b, "\nAdditional Instructions: %s\n", in.AdditionalInstructions)
	}
	return b.String()
}
