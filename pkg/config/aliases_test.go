package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	aliases := &ModelAliases{
		Aliases: map[string]string{
			"fast":    "gpt-4o-mini",
			"quality": "claude-sonnet-4-20250514",
		},
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"resolve known alias", "fast", "gpt-4o-mini"},
		{"resolve another alias", "quality", "claude-sonnet-4-20250514"},
		{"unknown alias returns input unchanged", "unknown-model", "unknown-model"},
		{"canonical model returns unchanged", "gpt-4o-mini", "gpt-4o-mini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, aliases.Resolve(tt.input))
		})
	}
}

func TestResolve_NilAliases(t *testing.T) {
	var aliases *ModelAliases
	assert.Equal(t, "fast", aliases.Resolve("fast"))
}

func TestValidateModel(t *testing.T) {
	aliases := DefaultAliases()

	assert.NoError(t, aliases.ValidateModel("openai", "gpt-4o"))
	assert.ErrorContains(t, aliases.ValidateModel("openai", "claude-opus-4-20250514"), "not in openai provider list")
	assert.ErrorContains(t, aliases.ValidateModel("nobody", "x"), "unknown adapter")

	var empty *ModelAliases
	assert.NoError(t, empty.ValidateModel("anything", "goes"))
}

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	data := []byte(`
aliases:
  writer: claude-sonnet-4-20250514
providers:
  anthropic:
    - claude-sonnet-4-20250514
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	aliases, err := LoadAliases(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", aliases.Resolve("writer"))
	assert.Equal(t, []string{"anthropic"}, aliases.ListProviders())
}

func TestLoadAliases_FileNotFound(t *testing.T) {
	_, err := LoadAliases(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadAliasesWithFallback_NoFile(t *testing.T) {
	aliases, err := LoadAliasesWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", aliases.Resolve("cheap"))
}

func TestValidateRoutingConfig(t *testing.T) {
	aliases := DefaultAliases()

	valid := &RoutingConfig{
		TaskTypes: map[string]TaskType{
			"writing": {Adapter: "anthropic", Model: "quality"},
		},
		Default: RouteTarget{Adapter: "mock", Model: "local"},
	}
	assert.Empty(t, aliases.ValidateRoutingConfig(valid))

	invalid := &RoutingConfig{
		TaskTypes: map[string]TaskType{
			"b": {Adapter: "openai", Model: "nope"},
			"a": {Adapter: "ghost", Model: "x"},
		},
		Default: RouteTarget{Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
	}
	errs := aliases.ValidateRoutingConfig(invalid)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), `task "a"`)
	assert.Contains(t, errs[1].Error(), `task "b"`)
}

func TestDefaultRoutingModelsAreKnown(t *testing.T) {
	assert.Empty(t, DefaultAliases().ValidateRoutingConfig(DefaultRoutingConfig()))
}
