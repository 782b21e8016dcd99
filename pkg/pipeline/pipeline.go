// Package pipeline defines content pipelines: a declared set of inputs and an
// ordered tree of steps (prompt, tool, function, conditional branch and
// embedded sub-pipeline) that an Engine runs against caller-supplied values.
package pipeline

import (
	"context"

	"github.com/zen-systems/contentflow/pkg/schema"
)

// StepKind identifies the variant of a Step.
type StepKind string

const (
	KindPrompt StepKind = "prompt"
	KindTool   StepKind = "tool"
	KindFunc   StepKind = "func"
	KindBranch StepKind = "branch"
	KindSub    StepKind = "sub"
)

// Func is a pure transformation over resolved argument values.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Predicate decides a conditional branch from resolved argument values.
type Predicate func(args map[string]any) (bool, error)

// Input is a named pipeline parameter.
type Input struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	HasDefault  bool   `json:"has_default"`
}

// Step is one unit of work. Which fields are meaningful depends on Kind.
type Step struct {
	Name string
	Kind StepKind
	Args map[string]Source

	// prompt
	Task     string
	Adapter  string
	Model    string
	TaskType string
	Schema   *schema.Schema

	// tool
	Tool string

	// func
	FuncName string
	Func     Func

	// branch
	PredicateName string
	Predicate     Predicate
	Then          []*Step
	Else          []*Step

	// sub
	Sub     *Pipeline
	Mapping map[string]Source
}

// Target names what the step calls: the tool, function, predicate or
// sub-pipeline. Prompt steps report their task type or adapter, if any.
func (s *Step) Target() string {
	switch s.Kind {
	case KindTool:
		return s.Tool
	case KindFunc:
		return s.FuncName
	case KindBranch:
		return s.PredicateName
	case KindSub:
		if s.Sub != nil {
			return s.Sub.Name()
		}
	case KindPrompt:
		if s.TaskType != "" {
			return s.TaskType
		}
		return s.Adapter
	}
	return ""
}

// Pipeline is an immutable, validated pipeline definition. Build one with New.
type Pipeline struct {
	name         string
	description  string
	inputs       []Input
	steps        []*Step
	outputSchema *schema.Schema
	finalOutput  string
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Description returns the pipeline description.
func (p *Pipeline) Description() string { return p.description }

// OutputSchema returns the schema applied to the final output, or nil.
func (p *Pipeline) OutputSchema() *schema.Schema { return p.outputSchema }

// FinalOutput returns the step designated as the final output, or "".
func (p *Pipeline) FinalOutput() string { return p.finalOutput }

// Inputs returns a copy of the declared inputs.
func (p *Pipeline) Inputs() []Input {
	return append([]Input(nil), p.inputs...)
}

// Input looks up a declared input by name.
func (p *Pipeline) Input(name string) (Input, bool) {
	for _, in := range p.inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// RequiredInputs returns the names of inputs without a default.
func (p *Pipeline) RequiredInputs() []string {
	var names []string
	for _, in := range p.inputs {
		if !in.HasDefault {
			names = append(names, in.Name)
		}
	}
	return names
}

// Walk visits every step depth-first in declaration order. Branch children
// are visited after their branch step. The Step passed to fn is a copy.
func (p *Pipeline) Walk(fn func(depth int, s Step)) {
	walkSteps(p.steps, 0, fn)
}

func walkSteps(steps []*Step, depth int, fn func(int, Step)) {
	for _, s := range steps {
		fn(depth, *s)
		if s.Kind == KindBranch {
			walkSteps(s.Then, depth+1, fn)
			walkSteps(s.Else, depth+1, fn)
		}
	}
}

// StepCount returns the number of steps, including those nested in branches.
func (p *Pipeline) StepCount() int {
	n := 0
	p.Walk(func(int, Step) { n++ })
	return n
}
