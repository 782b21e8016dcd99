package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(_ context.Context, args map[string]any) (any, error) {
	return args["v"], nil
}

func TestBuilderDuplicateNames(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Pipeline, error)
		dup   string
	}{
		{
			name: "input twice",
			build: func() (*Pipeline, error) {
				return New("p").Input("topic", "").Input("topic", "").Build()
			},
			dup: "topic",
		},
		{
			name: "step twice",
			build: func() (*Pipeline, error) {
				return New("p").
					Func("a", "identity", identity, nil).
					Func("a", "identity", identity, nil).
					Build()
			},
			dup: "a",
		},
		{
			name: "step named like an input",
			build: func() (*Pipeline, error) {
				return New("p").Input("topic", "").
					Func("topic", "identity", identity, nil).
					Build()
			},
			dup: "topic",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			var dupErr *DuplicateNameError
			require.ErrorAs(t, err, &dupErr)
			assert.Equal(t, tt.dup, dupErr.Name)
			assert.True(t, IsBuildError(err))
		})
	}
}

func TestBuilderForwardReference(t *testing.T) {
	_, err := New("p").
		Func("a", "identity", identity, Args{"v": StepRef("b")}).
		Func("b", "identity", identity, Args{"v": Literal(1)}).
		Build()

	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "a", refErr.Step)
	assert.Equal(t, "b", refErr.Ref)
}

func TestBuilderStepRefToInputIsRejected(t *testing.T) {
	_, err := New("p").Input("topic", "").
		Func("a", "identity", identity, Args{"v": StepRef("topic")}).
		Build()

	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
}

func TestBuilderUndeclaredInput(t *testing.T) {
	_, err := New("p").
		Func("a", "identity", identity, Args{"v": InputRef("nope")}).
		Build()

	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "nope", refErr.Ref)
}

func TestBuilderInputDeclaredAfterUse(t *testing.T) {
	p, err := New("p").
		Func("a", "identity", identity, Args{"v": InputRef("topic")}).
		Input("topic", "").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"topic"}, p.RequiredInputs())
}

func TestBuilderNestedRefsAreChecked(t *testing.T) {
	_, err := New("p").
		Func("a", "identity", identity, Args{
			"v": Object(map[string]Source{"x": List(Literal(1), Format("%v", StepRef("later")))}),
		}).
		Build()

	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "later", refErr.Ref)
}

func TestBuilderUnbalancedBlocks(t *testing.T) {
	always := func(map[string]any) (bool, error) { return true, nil }

	tests := []struct {
		name  string
		build func() (*Pipeline, error)
	}{
		{"end_if without if", func() (*Pipeline, error) { return New("p").EndIf().Build() }},
		{"else without if", func() (*Pipeline, error) { return New("p").Else().Build() }},
		{"second else", func() (*Pipeline, error) {
			return New("p").If("always", always, nil).Else().Else().EndIf().Build()
		}},
		{"open if at build", func() (*Pipeline, error) {
			return New("p").If("always", always, nil).Func("a", "identity", identity, nil).Build()
		}},
		{"nested open if", func() (*Pipeline, error) {
			return New("p").If("always", always, nil).If("always", always, nil).EndIf().Build()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			var blockErr *UnbalancedBlockError
			require.ErrorAs(t, err, &blockErr)
		})
	}
}

func TestBuilderNestedBlocks(t *testing.T) {
	always := func(map[string]any) (bool, error) { return true, nil }
	p, err := New("p").
		If("always", always, nil).
		Func("a", "identity", identity, nil).
		If("always", always, nil).
		Func("b", "identity", identity, nil).
		Else().
		Func("c", "identity", identity, nil).
		EndIf().
		EndIf().
		Func("d", "identity", identity, nil).
		Build()
	require.NoError(t, err)

	var seen []string
	p.Walk(func(depth int, s Step) {
		seen = append(seen, s.Name)
	})
	assert.Equal(t, []string{"if_1", "a", "if_2", "b", "c", "d"}, seen)
	assert.Equal(t, 6, p.StepCount())
}

func TestBuilderElseCannotSeeThenBranch(t *testing.T) {
	always := func(map[string]any) (bool, error) { return true, nil }

	_, err := New("p").
		If("always", always, nil).
		Func("a", "identity", identity, nil).
		Else().
		Func("b", "identity", identity, Args{"v": StepRef("a")}).
		EndIf().
		Build()
	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "b", refErr.Step)
	assert.Equal(t, "a", refErr.Ref)

	_, err = New("p").
		If("always", always, nil).
		Func("a", "identity", identity, nil).
		If("always", always, nil).
		Func("b", "identity", identity, nil).
		Else().
		Func("c", "identity", identity, Args{"v": StepRef("a")}).
		EndIf().
		EndIf().
		Func("d", "identity", identity, Args{"v": StepRef("b")}).
		Build()
	require.NoError(t, err, "outer then steps and steps after the block stay visible")
}

func TestBuilderNilNestedSource(t *testing.T) {
	p, err := New("p").
		Func("a", "identity", identity, Args{
			"v": Object(map[string]Source{"x": nil, "y": List(nil, Literal(1)), "z": Format("%v", nil)}),
		}).
		Build()
	require.NoError(t, err)

	res, err := NewEngine().Execute(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": nil, "y": []any{nil, 1}, "z": "<nil>"}, res.Output)
}

func TestBuilderStickyError(t *testing.T) {
	b := New("")
	b.Input("x", "").Func("a", "identity", identity, nil)
	_, err := b.Build()
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestBuilderNilFunc(t *testing.T) {
	_, err := New("p").Func("a", "missing", nil, nil).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestBuilderFinalOutputMustExist(t *testing.T) {
	_, err := New("p").Func("a", "identity", identity, nil).FinalOutput("zzz").Build()
	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "zzz", refErr.Ref)
}

func TestBuilderEmbedChecks(t *testing.T) {
	sub := New("sub").
		Input("topic", "").
		InputDefault("tone", "", "neutral").
		Func("echo", "identity", identity, Args{"v": InputRef("topic")}).
		MustBuild()

	t.Run("missing required input", func(t *testing.T) {
		_, err := New("outer").Embed("s", sub, nil).Build()
		var missing *MissingInputError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"topic"}, missing.Names)
		assert.Equal(t, "sub", missing.Pipeline)
	})

	t.Run("unknown mapping key", func(t *testing.T) {
		_, err := New("outer").
			Embed("s", sub, Args{"topic": Literal("x"), "colour": Literal("red")}).
			Build()
		var unknown *UnknownInputError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "colour", unknown.Name)
	})

	t.Run("defaults need no mapping", func(t *testing.T) {
		_, err := New("outer").Embed("s", sub, Args{"topic": Literal("x")}).Build()
		assert.NoError(t, err)
	})
}

func TestBuildIsDetached(t *testing.T) {
	b := New("p").Input("x", "").Func("a", "identity", identity, nil)
	p, err := b.Build()
	require.NoError(t, err)

	b.Func("b", "identity", identity, nil)
	assert.Equal(t, 1, p.StepCount())
}

func TestIsBuildError(t *testing.T) {
	assert.False(t, IsBuildError(errors.New("x")))
	assert.False(t, IsBuildError(&ToolInvocationError{Step: "a", Tool: "t", Err: errors.New("x")}))
	assert.True(t, IsBuildError(&UnbalancedBlockError{Pipeline: "p"}))
}
