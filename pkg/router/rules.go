package router

import (
	"sort"
	"strings"

	"github.com/zen-systems/contentflow/pkg/config"
)

// RuleSet contains the compiled routing rules for pattern matching.
type RuleSet struct {
	config *config.RoutingConfig
	// Longest trigger first, then task type name.
	rules []compiledRule
}

type compiledRule struct {
	taskType string
	trigger  string
	adapter  string
	model    string
}

// NewRuleSet creates a new rule set from routing configuration.
func NewRuleSet(cfg *config.RoutingConfig) *RuleSet {
	rs := &RuleSet{config: cfg}
	rs.compile()
	return rs
}

func (rs *RuleSet) compile() {
	rs.rules = nil

	for name, taskType := range rs.config.TaskTypes {
		for _, trigger := range taskType.Triggers {
			trigger = strings.ToLower(strings.TrimSpace(trigger))
			if trigger == "" {
				continue
			}
			rs.rules = append(rs.rules, compiledRule{
				taskType: name,
				trigger:  trigger,
				adapter:  taskType.Adapter,
				model:    taskType.Model,
			})
		}
	}

	sort.Slice(rs.rules, func(i, j int) bool {
		a, b := rs.rules[i], rs.rules[j]
		if len(a.trigger) != len(b.trigger) {
			return len(a.trigger) > len(b.trigger)
		}
		if a.taskType != b.taskType {
			return a.taskType < b.taskType
		}
		return a.trigger < b.trigger
	})
}

// Match finds the best matching rule for a prompt.
// Returns the adapter name and model, or defaults if no match.
func (rs *RuleSet) Match(prompt string) (adapter string, model string) {
	_, adapter, model = rs.MatchWithTaskType(prompt)
	return adapter, model
}

// MatchWithTaskType finds the best matching rule and returns task type info.
func (rs *RuleSet) MatchWithTaskType(prompt string) (taskType, adapter, model string) {
	promptLower := strings.ToLower(prompt)

	for _, rule := range rs.rules {
		if containsTrigger(promptLower, rule.trigger) {
			return rule.taskType, rule.adapter, rule.model
		}
	}

	return "default", rs.config.Default.Adapter, rs.config.Default.Model
}

// Candidates returns every task type with at least one trigger in prompt,
// highest score first. The score is the number of distinct triggers found.
func (rs *RuleSet) Candidates(prompt string) []Candidate {
	promptLower := strings.ToLower(prompt)

	byType := make(map[string]*Candidate)
	var order []string
	for _, rule := range rs.rules {
		if !containsTrigger(promptLower, rule.trigger) {
			continue
		}
		c, ok := byType[rule.taskType]
		if !ok {
			c = &Candidate{TaskType: rule.taskType, Adapter: rule.adapter, Model: rule.model}
			byType[rule.taskType] = c
			order = append(order, rule.taskType)
		}
		c.Score++
		c.Triggers = append(c.Triggers, rule.trigger)
	}

	out := make([]Candidate, 0, len(order))
	for _, name := range order {
		out = append(out, *byType[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// containsTrigger checks if the prompt contains the trigger phrase on word
// boundaries. Every occurrence is tried, so "rewrite and write" matches
// "write".
func containsTrigger(prompt, trigger string) bool {
	if trigger == "" {
		return false
	}
	from := 0
	for from <= len(prompt)-len(trigger) {
		idx := strings.Index(prompt[from:], trigger)
		if idx == -1 {
			return false
		}
		idx += from
		endIdx := idx + len(trigger)

		before := idx == 0 || !isWordChar(prompt[idx-1])
		after := endIdx >= len(prompt) || !isWordChar(prompt[endIdx])
		if before && after {
			return true
		}
		from = idx + 1
	}
	return false
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
