package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RoutingConfig holds the routing rules configuration.
type RoutingConfig struct {
	TaskTypes map[string]TaskType `yaml:"task_types"`
	Default   RouteTarget         `yaml:"default"`
	Retry     RetryConfig         `yaml:"retry,omitempty"`
	Fallback  FallbackConfig      `yaml:"fallback,omitempty"`
	Pricing   PricingConfig       `yaml:"pricing,omitempty"`
}

// TaskType defines a category of tasks with routing rules.
type TaskType struct {
	Triggers []string `yaml:"triggers"`
	Adapter  string   `yaml:"adapter"`
	Model    string   `yaml:"model"`
}

// RouteTarget specifies an adapter and model combination.
type RouteTarget struct {
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

// RetryConfig defines retry and backoff behavior.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// FallbackConfig defines adapter/model fallbacks.
type FallbackConfig struct {
	AllowFallback bool                     `yaml:"allow_fallback,omitempty"`
	FallbackChain map[string][]RouteTarget `yaml:"fallback_chain,omitempty"`
}

// PricingConfig maps adapter -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// LoadRoutingConfig reads routing configuration from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RoutingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyRoutingDefaults(&cfg)
	return &cfg, nil
}

// DefaultRoutingConfig returns the default routing configuration. Task types
// match the stages of content production.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		TaskTypes: map[string]TaskType{
			"research": {
				Triggers: []string{"research", "analyze search", "market", "competitor", "trend"},
				Adapter:  "google",
				Model:    "gemini-2.0-pro",
			},
			"outline": {
				Triggers: []string{"outline", "plan", "calendar", "structure"},
				Adapter:  "openai",
				Model:    "gpt-4o-mini",
			},
			"writing": {
				Triggers: []string{"write", "draft", "article"},
				Adapter:  "anthropic",
				Model:    "claude-sonnet-4-20250514",
			},
			"script": {
				Triggers: []string{"script", "show notes", "narration", "shot list"},
				Adapter:  "anthropic",
				Model:    "claude-sonnet-4-20250514",
			},
			"editing": {
				Triggers: []string{"edit", "revise", "seo", "optimize"},
				Adapter:  "anthropic",
				Model:    "claude-sonnet-4-20250514",
			},
			"fact_check": {
				Triggers: []string{"fact", "verify", "claims", "accuracy"},
				Adapter:  "anthropic",
				Model:    "claude-opus-4-20250514",
			},
			"social": {
				Triggers: []string{"tweet", "thread", "linkedin", "instagram", "social"},
				Adapter:  "openai",
				Model:    "gpt-4o-mini",
			},
			"summarize": {
				Triggers: []string{"summarize", "summary", "key points", "tldr"},
				Adapter:  "deepseek",
				Model:    "deepseek-chat",
			},
		},
		Default: RouteTarget{
			Adapter: "anthropic",
			Model:   "claude-sonnet-4-20250514",
		},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}
}
