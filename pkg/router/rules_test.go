package router

import (
	"strings"
	"testing"

	"github.com/zen-systems/contentflow/pkg/config"
)

func TestRuleSet_Match(t *testing.T) {
	cfg := config.DefaultRoutingConfig()
	rs := NewRuleSet(cfg)

	tests := []struct {
		name            string
		prompt          string
		expectedAdapter string
		expectedModel   string
	}{
		{
			name:            "research trigger",
			prompt:          "Research the market for home espresso machines",
			expectedAdapter: "google",
			expectedModel:   "gemini-2.0-pro",
		},
		{
			name:            "outline trigger",
			prompt:          "Create an outline for the post",
			expectedAdapter: "openai",
			expectedModel:   "gpt-4o-mini",
		},
		{
			name:            "write trigger",
			prompt:          "Write a friendly intro paragraph",
			expectedAdapter: "anthropic",
			expectedModel:   "claude-sonnet-4-20250514",
		},
		{
			name:            "fact check trigger",
			prompt:          "Verify the numbers quoted below",
			expectedAdapter: "anthropic",
			expectedModel:   "claude-opus-4-20250514",
		},
		{
			name:            "summarize trigger",
			prompt:          "Summarize this document for me",
			expectedAdapter: "deepseek",
			expectedModel:   "deepseek-chat",
		},
		{
			name:            "tldr trigger",
			prompt:          "TLDR this page please",
			expectedAdapter: "deepseek",
			expectedModel:   "deepseek-chat",
		},
		{
			name:            "multi-word trigger beats shorter ones",
			prompt:          "List the key points of this plan",
			expectedAdapter: "deepseek",
			expectedModel:   "deepseek-chat",
		},
		{
			name:            "social trigger",
			prompt:          "Turn this into a LinkedIn post",
			expectedAdapter: "openai",
			expectedModel:   "gpt-4o-mini",
		},
		{
			name:            "default - no trigger match",
			prompt:          "Hello, how are you today?",
			expectedAdapter: "anthropic",
			expectedModel:   "claude-sonnet-4-20250514",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, model := rs.Match(tt.prompt)
			if adapter != tt.expectedAdapter {
				t.Errorf("Match() adapter = %v, want %v", adapter, tt.expectedAdapter)
			}
			if model != tt.expectedModel {
				t.Errorf("Match() model = %v, want %v", model, tt.expectedModel)
			}
		})
	}
}

func TestRuleSet_MatchWithTaskType(t *testing.T) {
	cfg := config.DefaultRoutingConfig()
	rs := NewRuleSet(cfg)

	tests := []struct {
		name             string
		prompt           string
		expectedTaskType string
	}{
		{
			name:             "research task",
			prompt:           "Research competitor pricing pages",
			expectedTaskType: "research",
		},
		{
			name:             "editing task",
			prompt:           "Revise the draft for tone",
			expectedTaskType: "editing",
		},
		{
			name:             "default task",
			prompt:           "What time is it?",
			expectedTaskType: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taskType, _, _ := rs.MatchWithTaskType(tt.prompt)
			if taskType != tt.expectedTaskType {
				t.Errorf("MatchWithTaskType() taskType = %v, want %v", taskType, tt.expectedTaskType)
			}
		})
	}
}

func TestContainsTrigger(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		trigger  string
		expected bool
	}{
		{"exact match at start", "research this topic", "research", true},
		{"exact match in middle", "please research this topic", "research", true},
		{"exact match at end", "do some research", "research", true},
		{"case insensitive match", "RESEARCH this topic", "research", true},
		{"partial word - should not match", "preresearch the topic", "research", false},
		{"partial word suffix - should not match", "researching the topic", "research", false},
		{"later occurrence on a boundary", "rewrite it, then write more", "write", true},
		{"multi-word trigger", "list the key points here", "key points", true},
		{"trigger with punctuation after", "edit, then ship", "edit", true},
		{"no match", "hello world", "research", false},
		{"empty trigger", "hello world", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// containsTrigger expects lowercase inputs
			result := containsTrigger(strings.ToLower(tt.prompt), tt.trigger)
			if result != tt.expected {
				t.Errorf("containsTrigger(%q, %q) = %v, want %v",
					tt.prompt, tt.trigger, result, tt.expected)
			}
		})
	}
}

func TestRuleSet_LongerTriggerPrecedence(t *testing.T) {
	cfg := &config.RoutingConfig{
		TaskTypes: map[string]config.TaskType{
			"draft": {
				Triggers: []string{"post"},
				Adapter:  "openai",
				Model:    "gpt-4o-mini",
			},
			"long_form": {
				Triggers: []string{"long post"},
				Adapter:  "anthropic",
				Model:    "claude-opus-4-20250514",
			},
		},
		Default: config.RouteTarget{
			Adapter: "anthropic",
			Model:   "claude-sonnet-4-20250514",
		},
	}

	rs := NewRuleSet(cfg)

	adapter, model := rs.Match("Please write a long post about tea")
	if adapter != "anthropic" || model != "claude-opus-4-20250514" {
		t.Errorf("Expected long_form rule, got adapter=%s model=%s", adapter, model)
	}

	adapter, model = rs.Match("A short post please")
	if adapter != "openai" || model != "gpt-4o-mini" {
		t.Errorf("Expected draft rule, got adapter=%s model=%s", adapter, model)
	}
}

func TestRuleSet_Candidates(t *testing.T) {
	rs := NewRuleSet(config.DefaultRoutingConfig())

	got := rs.Candidates("Write an article and a tweet thread")
	if len(got) != 2 {
		t.Fatalf("Candidates() = %+v, want 2 entries", got)
	}
	if got[0].TaskType != "writing" || got[0].Score != 2 {
		t.Errorf("first candidate = %+v, want writing with score 2", got[0])
	}
	if got[1].TaskType != "social" || got[1].Score != 2 {
		t.Errorf("second candidate = %+v, want social with score 2", got[1])
	}
}
