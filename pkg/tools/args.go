package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func requireString(args map[string]any, names ...string) (string, error) {
	s := optString(args, "", names...)
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing argument %q", names[0])
	}
	return s, nil
}

// optString returns the first present argument among names as text.
func optString(args map[string]any, def string, names ...string) string {
	for _, name := range names {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case fmt.Stringer:
			return t.String()
		default:
			return fmt.Sprint(t)
		}
	}
	return def
}

func optInt(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("argument %q must be an integer", name)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", name)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", name)
		}
		return n, nil
	}
	return 0, fmt.Errorf("argument %q must be an integer, got %T", name, v)
}

// stringList accepts a single string or a list and returns non-empty items.
func stringList(args map[string]any, name string) ([]string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing argument %q", name)
	}
	var out []string
	switch t := v.(type) {
	case string:
		out = []string{t}
	case []string:
		out = append(out, t...)
	case []any:
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
	default:
		return nil, fmt.Errorf("argument %q must be a string or list, got %T", name, v)
	}

	items := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			items = append(items, s)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("argument %q is empty", name)
	}
	return items, nil
}
