package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Source describes where a step argument gets its value from.
type Source interface {
	resolve(rc *RunContext, step string) (any, error)
	refs() []reference
}

type refKind int

const (
	refInput refKind = iota
	refStep
)

type reference struct {
	kind refKind
	name string
}

// Args is shorthand for a step argument mapping.
type Args map[string]Source

// Literal returns a source yielding v unchanged.
func Literal(v any) Source { return literalSource{value: v} }

type literalSource struct{ value any }

func (s literalSource) resolve(*RunContext, string) (any, error) { return s.value, nil }
func (s literalSource) refs() []reference                        { return nil }

// InputRef returns a source yielding the run's value for the named input.
func InputRef(name string) Source { return inputSource{name: name} }

type inputSource struct{ name string }

func (s inputSource) resolve(rc *RunContext, step string) (any, error) {
	v, ok := rc.Get(s.name)
	if !ok {
		return nil, &UnresolvedReferenceError{Step: step, Ref: s.name, Reason: "input has no value"}
	}
	return v, nil
}

func (s inputSource) refs() []reference { return []reference{{kind: refInput, name: s.name}} }

// StepSource yields the output of an earlier step, optionally narrowed by a
// gjson path.
type StepSource struct {
	name string
	path string
}

// StepRef returns a source yielding the output of the named step.
func StepRef(name string) StepSource { return StepSource{name: name} }

// Path narrows the reference to a gjson path inside the step output, for
// example "recommended_angles.0" or "sources.#.url".
func (s StepSource) Path(path string) StepSource {
	s.path = path
	return s
}

func (s StepSource) resolve(rc *RunContext, step string) (any, error) {
	v, ok := rc.Get(s.name)
	if !ok {
		return nil, &UnresolvedReferenceError{
			Step:   step,
			Ref:    s.name,
			Path:   s.path,
			Reason: "step has not produced an output (not yet run or skipped by a branch)",
		}
	}
	if s.path == "" {
		return v, nil
	}
	res, err := lookupPath(v, s.path)
	if err != nil {
		return nil, &UnresolvedReferenceError{Step: step, Ref: s.name, Path: s.path, Reason: err.Error()}
	}
	return res, nil
}

func (s StepSource) refs() []reference { return []reference{{kind: refStep, name: s.name}} }

func lookupPath(v any, path string) (any, error) {
	var doc string
	switch t := v.(type) {
	case string:
		if !gjson.Valid(t) {
			return nil, fmt.Errorf("output is text, not JSON")
		}
		doc = t
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("output is not JSON encodable: %w", err)
		}
		doc = string(data)
	}
	res := gjson.Get(doc, path)
	if !res.Exists() {
		return nil, fmt.Errorf("path not found")
	}
	return res.Value(), nil
}

// Format returns a source that renders format with fmt.Sprintf over the
// resolved args. Non-string values are rendered with %v.
func Format(format string, args ...Source) Source {
	return formatSource{format: format, args: args}
}

type formatSource struct {
	format string
	args   []Source
}

func (s formatSource) resolve(rc *RunContext, step string) (any, error) {
	vals := make([]any, len(s.args))
	for i, a := range s.args {
		v, err := resolveSource(rc, step, a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return fmt.Sprintf(s.format, vals...), nil
}

func (s formatSource) refs() []reference { return collectRefs(s.args...) }

// Object returns a source yielding a map of resolved fields.
func Object(fields map[string]Source) Source { return objectSource{fields: fields} }

type objectSource struct{ fields map[string]Source }

func (s objectSource) resolve(rc *RunContext, step string) (any, error) {
	return resolveArgs(rc, step, s.fields)
}

func (s objectSource) refs() []reference {
	keys := sortedKeys(s.fields)
	sources := make([]Source, len(keys))
	for i, k := range keys {
		sources[i] = s.fields[k]
	}
	return collectRefs(sources...)
}

// List returns a source yielding a slice of resolved items.
func List(items ...Source) Source { return listSource{items: items} }

type listSource struct{ items []Source }

func (s listSource) resolve(rc *RunContext, step string) (any, error) {
	out := make([]any, 0, len(s.items))
	for _, item := range s.items {
		v, err := resolveSource(rc, step, item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s listSource) refs() []reference { return collectRefs(s.items...) }

func collectRefs(sources ...Source) []reference {
	var out []reference
	for _, s := range sources {
		if s != nil {
			out = append(out, s.refs()...)
		}
	}
	return out
}

// resolveSource treats a nil source as a null literal.
func resolveSource(rc *RunContext, step string, src Source) (any, error) {
	if src == nil {
		return nil, nil
	}
	return src.resolve(rc, step)
}

func resolveArgs(rc *RunContext, step string, args map[string]Source) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, name := range sortedKeys(args) {
		v, err := resolveSource(rc, step, args[name])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func sortedKeys(m map[string]Source) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// describeSource renders a source for listings and logs.
func describeSource(s Source) string {
	switch t := s.(type) {
	case nil:
		return "null"
	case literalSource:
		data, err := json.Marshal(t.value)
		if err != nil {
			return fmt.Sprintf("%v", t.value)
		}
		return string(data)
	case inputSource:
		return "$input." + t.name
	case StepSource:
		if t.path != "" {
			return "$step." + t.name + "." + t.path
		}
		return "$step." + t.name
	case formatSource:
		parts := make([]string, len(t.args))
		for i, a := range t.args {
			parts[i] = describeSource(a)
		}
		return fmt.Sprintf("format(%q, %s)", t.format, strings.Join(parts, ", "))
	case objectSource:
		keys := sortedKeys(t.fields)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + describeSource(t.fields[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case listSource:
		parts := make([]string, len(t.items))
		for i, item := range t.items {
			parts[i] = describeSource(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}

// DescribeArgs renders an argument mapping as sorted "name=source" pairs.
func DescribeArgs(args map[string]Source) []string {
	out := make([]string, 0, len(args))
	for _, k := range sortedKeys(args) {
		out = append(out, k+"="+describeSource(args[k]))
	}
	return out
}
