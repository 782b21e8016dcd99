package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/contentflow/pkg/schema"
)

// PredicateFactory builds a predicate over one argument from manifest values.
type PredicateFactory func(arg string, values []any) (Predicate, error)

// Registry resolves the names a manifest refers to.
type Registry struct {
	Funcs      map[string]Func
	Predicates map[string]PredicateFactory
	Schemas    map[string]*schema.Schema
	Pipelines  map[string]*Pipeline
}

// DefaultRegistry holds the standard functions, predicates and content
// schemas, and no sub-pipelines.
func DefaultRegistry() *Registry {
	return &Registry{
		Funcs:      Funcs(),
		Predicates: Predicates(),
		Schemas:    schema.Registry(),
		Pipelines:  make(map[string]*Pipeline),
	}
}

type manifest struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	Inputs       []manifestInput `yaml:"inputs"`
	Steps        []manifestStep  `yaml:"steps"`
	FinalOutput  string          `yaml:"final_output"`
	OutputSchema string          `yaml:"output_schema"`
}

type manifestInput struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Default     yaml.Node `yaml:"default"`
}

type manifestStep struct {
	Name string                    `yaml:"name"`
	Args map[string]manifestSource `yaml:"args"`

	Prompt   string `yaml:"prompt"`
	TaskType string `yaml:"task_type"`
	Adapter  string `yaml:"adapter"`
	Model    string `yaml:"model"`
	Schema   string `yaml:"schema"`

	Tool string `yaml:"tool"`
	Func string `yaml:"func"`

	If     string         `yaml:"if"`
	Arg    string         `yaml:"arg"`
	Values []any          `yaml:"values"`
	Then   []manifestStep `yaml:"then"`
	Else   []manifestStep `yaml:"else"`

	Sub  string                    `yaml:"sub"`
	With map[string]manifestSource `yaml:"with"`
}

// manifestSource decodes the YAML forms of a Source. Scalars are literals;
// mappings use one of the keys input, step (with optional path), literal,
// format (with args), object or list; sequences are lists.
type manifestSource struct {
	src Source
}

func (m *manifestSource) UnmarshalYAML(node *yaml.Node) error {
	src, err := decodeSource(node)
	if err != nil {
		return err
	}
	m.src = src
	return nil
}

func decodeSource(node *yaml.Node) (Source, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return Literal(v), nil
	case yaml.SequenceNode:
		items := make([]Source, 0, len(node.Content))
		for _, item := range node.Content {
			src, err := decodeSource(item)
			if err != nil {
				return nil, err
			}
			items = append(items, src)
		}
		return List(items...), nil
	case yaml.MappingNode:
		return decodeSourceMap(node)
	case yaml.AliasNode:
		return decodeSource(node.Alias)
	}
	return nil, fmt.Errorf("line %d: unsupported argument", node.Line)
}

func decodeSourceMap(node *yaml.Node) (Source, error) {
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1]
	}
	str := func(key string) string {
		if n, ok := fields[key]; ok {
			return n.Value
		}
		return ""
	}

	switch {
	case fields["input"] != nil:
		return InputRef(str("input")), nil
	case fields["step"] != nil:
		ref := StepRef(str("step"))
		if p := str("path"); p != "" {
			ref = ref.Path(p)
		}
		return ref, nil
	case fields["literal"] != nil:
		var v any
		if err := fields["literal"].Decode(&v); err != nil {
			return nil, err
		}
		return Literal(v), nil
	case fields["format"] != nil:
		var args []Source
		if n := fields["args"]; n != nil {
			if n.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("line %d: format args must be a list", n.Line)
			}
			for _, item := range n.Content {
				src, err := decodeSource(item)
				if err != nil {
					return nil, err
				}
				args = append(args, src)
			}
		}
		return Format(str("format"), args...), nil
	case fields["object"] != nil:
		n := fields["object"]
		if n.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: object must be a mapping", n.Line)
		}
		obj := make(map[string]Source, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			src, err := decodeSource(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj[n.Content[i].Value] = src
		}
		return Object(obj), nil
	case fields["list"] != nil:
		return decodeSource(fields["list"])
	}
	return nil, fmt.Errorf("line %d: argument needs one of input, step, literal, format, object or list", node.Line)
}

// LoadManifest reads a pipeline definition from a YAML file.
func LoadManifest(path string, reg *Registry) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := ParseManifest(data, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseManifest builds a pipeline from YAML. Names of functions, predicates,
// schemas and sub-pipelines are looked up in reg; a nil reg means
// DefaultRegistry.
func ParseManifest(data []byte, reg *Registry) (*Pipeline, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("pipeline name is required")
	}
	if len(m.Steps) == 0 {
		return nil, fmt.Errorf("pipeline %q must define at least one step", m.Name)
	}

	b := New(m.Name).Describe(m.Description)
	for _, in := range m.Inputs {
		if in.Default.Kind == 0 {
			b.Input(in.Name, in.Description)
			continue
		}
		var v any
		if err := in.Default.Decode(&v); err != nil {
			return nil, fmt.Errorf("input %q default: %w", in.Name, err)
		}
		b.InputDefault(in.Name, in.Description, v)
	}

	if err := addManifestSteps(b, m.Steps, reg); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", m.Name, err)
	}

	if m.FinalOutput != "" {
		b.FinalOutput(m.FinalOutput)
	}
	if m.OutputSchema != "" {
		sc, ok := reg.Schemas[m.OutputSchema]
		if !ok {
			return nil, fmt.Errorf("pipeline %q: unknown output schema %q", m.Name, m.OutputSchema)
		}
		b.OutputSchema(sc)
	}
	return b.Build()
}

func addManifestSteps(b *Builder, steps []manifestStep, reg *Registry) error {
	for i := range steps {
		if err := addManifestStep(b, &steps[i], reg); err != nil {
			return err
		}
	}
	return nil
}

func addManifestStep(b *Builder, s *manifestStep, reg *Registry) error {
	kinds := 0
	for _, set := range []bool{s.Prompt != "", s.Tool != "", s.Func != "", s.If != "", s.Sub != ""} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("step %q must set exactly one of prompt, tool, func, if or sub", s.Name)
	}

	args := sources(s.Args)
	switch {
	case s.Prompt != "":
		if s.Name == "" {
			return fmt.Errorf("prompt step needs a name")
		}
		var opts []PromptOption
		if s.Adapter != "" || s.Model != "" {
			opts = append(opts, WithAdapter(s.Adapter, s.Model))
		}
		if s.TaskType != "" {
			opts = append(opts, WithTaskType(s.TaskType))
		}
		if s.Schema != "" {
			sc, ok := reg.Schemas[s.Schema]
			if !ok {
				return fmt.Errorf("step %q: unknown schema %q", s.Name, s.Schema)
			}
			opts = append(opts, WithStructuredOutput(sc))
		}
		b.Prompt(s.Name, s.Prompt, args, opts...)

	case s.Tool != "":
		b.Tool(orDefault(s.Name, s.Tool), s.Tool, args)

	case s.Func != "":
		fn, ok := reg.Funcs[s.Func]
		if !ok {
			return fmt.Errorf("step %q: unknown function %q", s.Name, s.Func)
		}
		b.Func(orDefault(s.Name, s.Func), s.Func, fn, args)

	case s.If != "":
		factory, ok := reg.Predicates[s.If]
		if !ok {
			return fmt.Errorf("unknown predicate %q", s.If)
		}
		arg := s.Arg
		if arg == "" && len(s.Args) == 1 {
			for k := range s.Args {
				arg = k
			}
		}
		pred, err := factory(arg, s.Values)
		if err != nil {
			return fmt.Errorf("predicate %q: %w", s.If, err)
		}
		b.If(s.If, pred, args)
		if err := addManifestSteps(b, s.Then, reg); err != nil {
			return err
		}
		if len(s.Else) > 0 {
			b.Else()
			if err := addManifestSteps(b, s.Else, reg); err != nil {
				return err
			}
		}
		b.EndIf()

	case s.Sub != "":
		sub, ok := reg.Pipelines[s.Sub]
		if !ok {
			return fmt.Errorf("step %q: unknown pipeline %q", s.Name, s.Sub)
		}
		b.Embed(orDefault(s.Name, s.Sub), sub, sources(s.With))
	}
	return nil
}

func sources(m map[string]manifestSource) map[string]Source {
	if m == nil {
		return nil
	}
	out := make(map[string]Source, len(m))
	for k, v := range m {
		out[k] = v.src
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
