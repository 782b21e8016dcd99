package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps short model names to canonical ones and lists the models
// each provider offers.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, err
	}
	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}
	return &aliases, nil
}

// LoadAliasesWithFallback loads aliases from path when it exists and returns
// DefaultAliases otherwise.
func LoadAliasesWithFallback(path string) (*ModelAliases, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadAliases(path)
		}
	}
	return DefaultAliases(), nil
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// ValidateModel checks that model is in the adapter's provider list.
func (a *ModelAliases) ValidateModel(adapter, model string) error {
	if a == nil || a.Providers == nil {
		return nil
	}
	models, ok := a.Providers[adapter]
	if !ok {
		return fmt.Errorf("unknown adapter %q", adapter)
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not in %s provider list", model, adapter)
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// ValidateRoutingConfig checks every model in cfg against the provider lists,
// in task type name order.
func (a *ModelAliases) ValidateRoutingConfig(cfg *RoutingConfig) []error {
	if a == nil || cfg == nil {
		return nil
	}

	names := make([]string, 0, len(cfg.TaskTypes))
	for name := range cfg.TaskTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		taskType := cfg.TaskTypes[name]
		if err := a.ValidateModel(taskType.Adapter, a.Resolve(taskType.Model)); err != nil {
			errs = append(errs, fmt.Errorf("task %q: %w", name, err))
		}
	}
	if err := a.ValidateModel(cfg.Default.Adapter, a.Resolve(cfg.Default.Model)); err != nil {
		errs = append(errs, fmt.Errorf("default: %w", err))
	}
	return errs
}

// DefaultAliases returns the built-in aliases.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			"fast":     "gpt-4o-mini",
			"quality":  "claude-sonnet-4-20250514",
			"deep":     "claude-opus-4-20250514",
			"research": "gemini-2.0-pro",
			"cheap":    "deepseek-chat",
			"local":    "mock-1",
		},
		Providers: map[string][]string{
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-4o", "gpt-4o-mini"},
			"google":    {"gemini-2.0-pro", "gemini-2.0-flash"},
			"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
			"mock":      {"mock-1"},
		},
	}
}
