package pipeline

import (
	"fmt"

	"github.com/zen-systems/contentflow/pkg/schema"
)

// Builder assembles a Pipeline:
//
//	p, err := pipeline.New("article").
//	    Input("topic", "what to write about").
//	    Prompt("draft", "Write an article about {{.topic}}", pipeline.Args{"topic": pipeline.InputRef("topic")}).
//	    Func("words", "word_count", wordCount, pipeline.Args{"text": pipeline.StepRef("draft")}).
//	    Build()
//
// The first error encountered is kept and returned by Build; later calls are
// ignored.
type Builder struct {
	p         *Pipeline
	names     map[string]bool
	steps     map[string]bool
	hidden    map[string]int
	inputRefs []pendingRef
	open      []*openBlock
	branches  int
	err       error
}

type openBlock struct {
	step   *Step
	inElse bool
	then   []string
}

type pendingRef struct {
	step string
	name string
}

// PromptOption configures a prompt step.
type PromptOption func(*Step)

// WithAdapter pins a prompt step to an adapter and model.
func WithAdapter(adapterName, model string) PromptOption {
	return func(s *Step) {
		s.Adapter = adapterName
		s.Model = model
	}
}

// WithTaskType routes a prompt step by task type.
func WithTaskType(taskType string) PromptOption {
	return func(s *Step) { s.TaskType = taskType }
}

// WithStructuredOutput asks for a JSON answer matching sc and validates it.
func WithStructuredOutput(sc *schema.Schema) PromptOption {
	return func(s *Step) { s.Schema = sc }
}

// New starts a pipeline definition.
func New(name string) *Builder {
	b := &Builder{
		p:      &Pipeline{name: name},
		names:  make(map[string]bool),
		steps:  make(map[string]bool),
		hidden: make(map[string]int),
	}
	if name == "" {
		b.err = fmt.Errorf("pipeline: %w", ErrEmptyName)
	}
	return b
}

// Describe sets the pipeline description.
func (b *Builder) Describe(description string) *Builder {
	b.p.description = description
	return b
}

// Input declares a required input.
func (b *Builder) Input(name, description string) *Builder {
	return b.addInput(Input{Name: name, Description: description})
}

// InputDefault declares an input that falls back to value when not bound.
func (b *Builder) InputDefault(name, description string, value any) *Builder {
	return b.addInput(Input{Name: name, Description: description, Default: value, HasDefault: true})
}

func (b *Builder) addInput(in Input) *Builder {
	if b.err != nil {
		return b
	}
	if !b.claim(in.Name) {
		return b
	}
	b.p.inputs = append(b.p.inputs, in)
	return b
}

// Prompt appends a step that sends task, rendered with the resolved args, to
// the prompt executor.
func (b *Builder) Prompt(name, task string, args map[string]Source, opts ...PromptOption) *Builder {
	s := &Step{Name: name, Kind: KindPrompt, Task: task, Args: args}
	for _, opt := range opts {
		opt(s)
	}
	return b.addStep(s)
}

// Tool appends a step that invokes the named tool with the resolved args.
func (b *Builder) Tool(name, tool string, args map[string]Source) *Builder {
	if b.err == nil && tool == "" {
		b.err = fmt.Errorf("step %q: tool %w", name, ErrEmptyName)
		return b
	}
	return b.addStep(&Step{Name: name, Kind: KindTool, Tool: tool, Args: args})
}

// Func appends a step that applies fn to the resolved args.
func (b *Builder) Func(name, funcName string, fn Func, args map[string]Source) *Builder {
	if b.err == nil && fn == nil {
		b.err = fmt.Errorf("step %q: function %q is nil", name, funcName)
		return b
	}
	return b.addStep(&Step{Name: name, Kind: KindFunc, FuncName: funcName, Func: fn, Args: args})
}

// If opens a conditional block. Steps declared until Else or EndIf run only
// when p returns true for the resolved args.
func (b *Builder) If(predicateName string, p Predicate, args map[string]Source) *Builder {
	if b.err != nil {
		return b
	}
	if p == nil {
		b.err = fmt.Errorf("pipeline %q: predicate %q is nil", b.p.name, predicateName)
		return b
	}
	name := b.branchName()
	s := &Step{Name: name, Kind: KindBranch, PredicateName: predicateName, Predicate: p, Args: args}
	b.addStep(s)
	if b.err != nil {
		return b
	}
	b.open = append(b.open, &openBlock{step: s})
	return b
}

// Else switches the innermost open block to its else branch.
func (b *Builder) Else() *Builder {
	if b.err != nil {
		return b
	}
	if len(b.open) == 0 {
		b.err = &UnbalancedBlockError{Pipeline: b.p.name, Reason: "else without if"}
		return b
	}
	top := b.open[len(b.open)-1]
	if top.inElse {
		b.err = &UnbalancedBlockError{Pipeline: b.p.name, Reason: fmt.Sprintf("second else in %s", top.step.Name)}
		return b
	}
	top.inElse = true
	// The else branch never runs after the then branch.
	for _, name := range top.then {
		b.hidden[name]++
	}
	return b
}

// EndIf closes the innermost open block.
func (b *Builder) EndIf() *Builder {
	if b.err != nil {
		return b
	}
	if len(b.open) == 0 {
		b.err = &UnbalancedBlockError{Pipeline: b.p.name, Reason: "end_if without if"}
		return b
	}
	top := b.open[len(b.open)-1]
	if top.inElse {
		for _, name := range top.then {
			if b.hidden[name]--; b.hidden[name] <= 0 {
				delete(b.hidden, name)
			}
		}
	}
	b.open = b.open[:len(b.open)-1]
	return b
}

// Embed appends a step that runs sub with inputs taken from mapping. The
// mapping must cover every input of sub that has no default.
func (b *Builder) Embed(name string, sub *Pipeline, mapping map[string]Source) *Builder {
	if b.err != nil {
		return b
	}
	if sub == nil {
		b.err = fmt.Errorf("step %q: sub-pipeline is nil", name)
		return b
	}
	keys := sortedKeys(mapping)
	for _, k := range keys {
		if _, ok := sub.Input(k); !ok {
			b.err = &UnknownInputError{Pipeline: sub.Name(), Name: k}
			return b
		}
	}
	var missing []string
	for _, req := range sub.RequiredInputs() {
		if _, ok := mapping[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		b.err = &MissingInputError{Step: name, Pipeline: sub.Name(), Names: missing}
		return b
	}
	return b.addStep(&Step{Name: name, Kind: KindSub, Sub: sub, Mapping: mapping})
}

// FinalOutput designates the step whose output the run returns.
func (b *Builder) FinalOutput(step string) *Builder {
	b.p.finalOutput = step
	return b
}

// OutputSchema sets the schema the final output is validated against.
func (b *Builder) OutputSchema(s *schema.Schema) *Builder {
	b.p.outputSchema = s
	return b
}

// Build finishes the definition.
func (b *Builder) Build() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.open) > 0 {
		return nil, &UnbalancedBlockError{
			Pipeline: b.p.name,
			Reason:   fmt.Sprintf("%d if block(s) not closed, innermost %s", len(b.open), b.open[len(b.open)-1].step.Name),
		}
	}
	for _, ref := range b.inputRefs {
		if _, ok := b.p.Input(ref.name); !ok {
			return nil, &UnresolvedReferenceError{Step: ref.step, Ref: ref.name, Reason: "input is not declared"}
		}
	}
	if b.p.finalOutput != "" && !b.steps[b.p.finalOutput] {
		return nil, &UnresolvedReferenceError{Step: "final_output", Ref: b.p.finalOutput, Reason: "step is not declared"}
	}

	// Detach from the builder so later builder calls cannot alter the result.
	p := *b.p
	p.inputs = append([]Input(nil), b.p.inputs...)
	p.steps = append([]*Step(nil), b.p.steps...)
	return &p, nil
}

// MustBuild is Build for statically defined pipelines; it panics on error.
func (b *Builder) MustBuild() *Pipeline {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

func (b *Builder) addStep(s *Step) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.checkRefs(s); err != nil {
		b.err = err
		return b
	}
	if !b.claim(s.Name) {
		return b
	}
	b.steps[s.Name] = true
	for _, blk := range b.open {
		if !blk.inElse {
			blk.then = append(blk.then, s.Name)
		}
	}

	if len(b.open) == 0 {
		b.p.steps = append(b.p.steps, s)
		return b
	}
	top := b.open[len(b.open)-1]
	if top.inElse {
		top.step.Else = append(top.step.Else, s)
	} else {
		top.step.Then = append(top.step.Then, s)
	}
	return b
}

// checkRefs enforces backward-only step references. Input references are
// checked in Build so inputs may be declared in any order.
func (b *Builder) checkRefs(s *Step) error {
	var refs []reference
	for _, k := range sortedKeys(s.Args) {
		if src := s.Args[k]; src != nil {
			refs = append(refs, src.refs()...)
		}
	}
	for _, k := range sortedKeys(s.Mapping) {
		if src := s.Mapping[k]; src != nil {
			refs = append(refs, src.refs()...)
		}
	}
	for _, r := range refs {
		switch r.kind {
		case refStep:
			if !b.steps[r.name] {
				return &UnresolvedReferenceError{Step: s.Name, Ref: r.name, Reason: "step is not declared before this step"}
			}
			if b.hidden[r.name] > 0 {
				return &UnresolvedReferenceError{Step: s.Name, Ref: r.name, Reason: "step belongs to the then branch of this else"}
			}
		case refInput:
			b.inputRefs = append(b.inputRefs, pendingRef{step: s.Name, name: r.name})
		}
	}
	return nil
}

func (b *Builder) claim(name string) bool {
	if name == "" {
		b.err = fmt.Errorf("pipeline %q: %w", b.p.name, ErrEmptyName)
		return false
	}
	if b.names[name] {
		b.err = &DuplicateNameError{Pipeline: b.p.name, Name: name}
		return false
	}
	b.names[name] = true
	return true
}

func (b *Builder) branchName() string {
	for {
		b.branches++
		name := fmt.Sprintf("if_%d", b.branches)
		if !b.names[name] {
			return name
		}
	}
}
