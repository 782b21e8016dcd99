package router

import "fmt"

// Candidate is a task type whose triggers appear in a prompt.
type Candidate struct {
	TaskType string   `json:"task_type"`
	Score    int      `json:"score"`
	Triggers []string `json:"triggers,omitempty"`
	Adapter  string   `json:"adapter,omitempty"`
	Model    string   `json:"model,omitempty"`
}

// Decision records which adapter and model a prompt was sent to, and why.
type Decision struct {
	TaskType string `json:"task_type"`
	Adapter  string `json:"adapter"`
	// Model is the canonical model name; RequestedModel is what the route or
	// step asked for, possibly an alias.
	Model          string      `json:"model"`
	RequestedModel string      `json:"requested_model,omitempty"`
	Reasons        []string    `json:"reasons,omitempty"`
	Candidates     []Candidate `json:"candidates,omitempty"`
}

func (d *Decision) addReason(format string, args ...any) {
	d.Reasons = append(d.Reasons, fmt.Sprintf(format, args...))
}
