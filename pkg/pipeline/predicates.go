package pipeline

import (
	"fmt"
	"reflect"
	"strings"
)

// ContainsAny is true when the named argument (a list, or a string) contains
// at least one of values. String comparison is case-insensitive.
func ContainsAny(arg string, values ...string) Predicate {
	return func(args map[string]any) (bool, error) {
		items, err := stringItems(args, arg)
		if err != nil {
			return false, err
		}
		for _, item := range items {
			for _, v := range values {
				if strings.EqualFold(strings.TrimSpace(item), v) {
					return true, nil
				}
			}
		}
		return false, nil
	}
}

// Contains is ContainsAny with a single value.
func Contains(arg, value string) Predicate {
	return ContainsAny(arg, value)
}

// Truthy is true when the named argument is set and not a zero value: false,
// "", "false", "no", "0", 0, or an empty list or map.
func Truthy(arg string) Predicate {
	return func(args map[string]any) (bool, error) {
		v, ok := args[arg]
		if !ok {
			return false, fmt.Errorf("argument %q not provided", arg)
		}
		return truthy(v), nil
	}
}

// LenAtLeast is true when the named argument has at least n elements (or
// characters, for a string).
func LenAtLeast(arg string, n int) Predicate {
	return func(args map[string]any) (bool, error) {
		v, ok := args[arg]
		if !ok {
			return false, fmt.Errorf("argument %q not provided", arg)
		}
		if v == nil {
			return n <= 0, nil
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return rv.Len() >= n, nil
		}
		return false, fmt.Errorf("argument %q has no length (%T)", arg, v)
	}
}

// Equals is true when the named argument renders equal to value.
func Equals(arg string, value any) Predicate {
	return func(args map[string]any) (bool, error) {
		v, ok := args[arg]
		if !ok {
			return false, fmt.Errorf("argument %q not provided", arg)
		}
		if reflect.DeepEqual(v, value) {
			return true, nil
		}
		return fmt.Sprint(v) == fmt.Sprint(value), nil
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(args map[string]any) (bool, error) {
		ok, err := p(args)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// All is true when every predicate is true.
func All(ps ...Predicate) Predicate {
	return func(args map[string]any) (bool, error) {
		for _, p := range ps {
			ok, err := p(args)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "no", "0", "off":
			return false
		}
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	}
	return true
}

// stringItems reads a list-like argument as strings. A plain string is split
// on commas so "blog, twitter" and ["blog","twitter"] behave the same.
func stringItems(args map[string]any, arg string) ([]string, error) {
	v, ok := args[arg]
	if !ok {
		return nil, fmt.Errorf("argument %q not provided", arg)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Split(t, ","), nil
	case []string:
		return t, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("argument %q is not a list (%T)", arg, v)
	}
	out := make([]string, rv.Len())
	for i := range out {
		out[i] = fmt.Sprint(rv.Index(i).Interface())
	}
	return out, nil
}

// Predicates returns the named predicate constructors usable from manifests.
// Each takes the argument name and the manifest's "values".
func Predicates() map[string]PredicateFactory {
	return map[string]PredicateFactory{
		"contains_any": func(arg string, values []any) (Predicate, error) {
			strs := make([]string, len(values))
			for i, v := range values {
				strs[i] = fmt.Sprint(v)
			}
			return ContainsAny(arg, strs...), nil
		},
		"truthy": func(arg string, _ []any) (Predicate, error) {
			return Truthy(arg), nil
		},
		"falsy": func(arg string, _ []any) (Predicate, error) {
			return Not(Truthy(arg)), nil
		},
		"len_at_least": func(arg string, values []any) (Predicate, error) {
			if len(values) != 1 {
				return nil, fmt.Errorf("len_at_least takes one value")
			}
			n, ok := toInt(values[0])
			if !ok {
				return nil, fmt.Errorf("len_at_least: %v is not an integer", values[0])
			}
			return LenAtLeast(arg, n), nil
		},
		"equals": func(arg string, values []any) (Predicate, error) {
			if len(values) != 1 {
				return nil, fmt.Errorf("equals takes one value")
			}
			return Equals(arg, values[0]), nil
		},
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	}
	return 0, false
}
