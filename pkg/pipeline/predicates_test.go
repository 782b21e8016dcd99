package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		p    Predicate
		args map[string]any
		want bool
	}{
		{"contains any list", ContainsAny("platforms", "twitter", "linkedin"), map[string]any{"platforms": []any{"blog", "Twitter"}}, true},
		{"contains any typed list", ContainsAny("platforms", "linkedin"), map[string]any{"platforms": []string{"linkedin"}}, true},
		{"contains any string", ContainsAny("platforms", "youtube"), map[string]any{"platforms": "blog, youtube"}, true},
		{"contains any miss", ContainsAny("platforms", "tiktok"), map[string]any{"platforms": []any{"blog"}}, false},
		{"contains any nil", ContainsAny("platforms", "blog"), map[string]any{"platforms": nil}, false},
		{"contains", Contains("formats", "podcast"), map[string]any{"formats": []any{"article", "podcast"}}, true},
		{"truthy string", Truthy("x"), map[string]any{"x": "yes"}, true},
		{"truthy false string", Truthy("x"), map[string]any{"x": "False"}, false},
		{"truthy empty list", Truthy("x"), map[string]any{"x": []any{}}, false},
		{"truthy number", Truthy("x"), map[string]any{"x": 2.5}, true},
		{"truthy zero", Truthy("x"), map[string]any{"x": 0}, false},
		{"truthy map", Truthy("x"), map[string]any{"x": map[string]any{"a": 1}}, true},
		{"len at least list", LenAtLeast("x", 2), map[string]any{"x": []any{1, 2}}, true},
		{"len at least short", LenAtLeast("x", 3), map[string]any{"x": "ab"}, false},
		{"len at least nil", LenAtLeast("x", 0), map[string]any{"x": nil}, true},
		{"equals", Equals("x", "long"), map[string]any{"x": "long"}, true},
		{"equals rendered", Equals("x", 3), map[string]any{"x": 3.0}, true},
		{"not", Not(Truthy("x")), map[string]any{"x": ""}, true},
		{"all", All(Truthy("x"), LenAtLeast("x", 2)), map[string]any{"x": "ab"}, true},
		{"all short circuits", All(Truthy("x"), LenAtLeast("x", 5)), map[string]any{"x": "ab"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.p(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPredicateErrors(t *testing.T) {
	_, err := Truthy("x")(map[string]any{})
	assert.Error(t, err)

	_, err = LenAtLeast("x", 1)(map[string]any{"x": 3})
	assert.Error(t, err)

	_, err = ContainsAny("x", "a")(map[string]any{"x": 3})
	assert.Error(t, err)
}

func TestPredicateFactories(t *testing.T) {
	factories := Predicates()

	p, err := factories["contains_any"]("platforms", []any{"twitter", "linkedin"})
	require.NoError(t, err)
	ok, err := p(map[string]any{"platforms": []any{"linkedin"}})
	require.NoError(t, err)
	assert.True(t, ok)

	p, err = factories["falsy"]("x", nil)
	require.NoError(t, err)
	ok, err = p(map[string]any{"x": ""})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = factories["len_at_least"]("x", []any{"three"})
	assert.Error(t, err)
	_, err = factories["equals"]("x", nil)
	assert.Error(t, err)

	p, err = factories["len_at_least"]("x", []any{2})
	require.NoError(t, err)
	ok, err = p(map[string]any{"x": []any{1}})
	require.NoError(t, err)
	assert.False(t, ok)
}
