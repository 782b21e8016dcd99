package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseInputs merges bindings from a YAML or JSON file with key=value pairs.
// Pairs win over the file. A pair's value is decoded as JSON when it parses
// (lists, objects, numbers, booleans) and kept as a string otherwise.
func parseInputs(file string, pairs []string) (map[string]any, error) {
	bindings := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		if err := yaml.Unmarshal(data, &bindings); err != nil {
			return nil, fmt.Errorf("parse input file %s: %w", file, err)
		}
		if bindings == nil {
			bindings = map[string]any{}
		}
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q: want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		bindings[key] = v
	}
	return bindings, nil
}
