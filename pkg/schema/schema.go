// Package schema describes the expected shape of pipeline outputs and
// validates (and where possible coerces) values against it.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Type is the JSON type expected for a field.
type Type string

const (
	TypeAny     Type = ""
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Field describes one named member of an object.
type Field struct {
	Name        string  `json:"name" yaml:"name"`
	Type        Type    `json:"type,omitempty" yaml:"type,omitempty"`
	Required    bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Items       *Field  `json:"items,omitempty" yaml:"items,omitempty"`
	Fields      []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Schema is the top-level object description of a value.
type Schema struct {
	Name   string  `json:"name" yaml:"name"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// New builds a schema from fields.
func New(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Fields: fields}
}

// Required declares a required field of type t.
func Required(name string, t Type, description string) Field {
	return Field{Name: name, Type: t, Required: true, Description: description}
}

// Optional declares an optional field of type t.
func Optional(name string, t Type, description string) Field {
	return Field{Name: name, Type: t, Description: description}
}

// ListOf declares an array field whose elements match items.
func ListOf(name string, required bool, items Type, description string) Field {
	return Field{
		Name:        name,
		Type:        TypeArray,
		Required:    required,
		Description: description,
		Items:       &Field{Type: items},
	}
}

// FieldNames returns the names of the top-level fields, required first.
func (s *Schema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	for _, f := range s.Fields {
		if !f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Describe renders a compact JSON-like skeleton of the schema, suitable for
// asking a model to answer in that shape.
func (s *Schema) Describe() string {
	if s == nil {
		return "{}"
	}
	var b strings.Builder
	describeFields(&b, s.Fields, 0)
	return b.String()
}

func describeFields(b *strings.Builder, fields []Field, depth int) {
	indent := strings.Repeat("  ", depth+1)
	b.WriteString("{\n")
	for i, f := range fields {
		b.WriteString(indent)
		b.WriteString(strconv.Quote(f.Name))
		b.WriteString(": ")
		describeType(b, f, depth+1)
		if !f.Required {
			b.WriteString(" (optional)")
		}
		if f.Description != "" {
			b.WriteString(" // ")
			b.WriteString(f.Description)
		}
		if i < len(fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("}")
}

func describeType(b *strings.Builder, f Field, depth int) {
	switch f.Type {
	case TypeObject:
		if len(f.Fields) > 0 {
			describeFields(b, f.Fields, depth)
			return
		}
		b.WriteString("object")
	case TypeArray:
		b.WriteString("[")
		if f.Items != nil {
			describeType(b, *f.Items, depth)
		} else {
			b.WriteString("any")
		}
		b.WriteString("]")
	case TypeAny:
		b.WriteString("any")
	default:
		b.WriteString(string(f.Type))
	}
}

// FieldError describes one mismatch between a value and the schema.
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationError is returned when a value does not conform to a schema.
type ValidationError struct {
	Schema string       `json:"schema"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Path, f.Reason))
	}
	return fmt.Sprintf("schema %q validation failed: %s", e.Schema, strings.Join(parts, "; "))
}

// Validate checks value against s. A value that already conforms is returned
// as-is; otherwise a coerced copy is returned. The input value is never
// mutated.
func (s *Schema) Validate(value any) (any, error) {
	if s == nil {
		return value, nil
	}
	v := &validator{}
	out, changed := v.object("$", s.Fields, value)
	if len(v.errs) > 0 {
		sort.SliceStable(v.errs, func(i, j int) bool { return v.errs[i].Path < v.errs[j].Path })
		return nil, &ValidationError{Schema: s.Name, Fields: v.errs}
	}
	if !changed {
		return value, nil
	}
	return out, nil
}

type validator struct {
	errs []FieldError
}

func (v *validator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Path: path, Reason: fmt.Sprintf(format, args...)})
}

func (v *validator) object(path string, fields []Field, value any) (any, bool) {
	m, changed, ok := asObject(value)
	if !ok {
		v.fail(path, "expected object, got %s", kindOf(value))
		return nil, false
	}

	out := m
	copied := false
	for _, f := range fields {
		fieldPath := path + "." + f.Name
		raw, present := m[f.Name]
		if !present || raw == nil {
			if f.Required {
				v.fail(fieldPath, "required field is missing")
			}
			continue
		}
		nv, c := v.value(fieldPath, f, raw)
		if !c {
			continue
		}
		if !copied {
			out = make(map[string]any, len(m))
			for k, val := range m {
				out[k] = val
			}
			copied = true
		}
		out[f.Name] = nv
		changed = true
	}
	return out, changed
}

func (v *validator) value(path string, f Field, value any) (any, bool) {
	switch f.Type {
	case TypeAny:
		return value, false
	case TypeString:
		switch t := value.(type) {
		case string:
			return t, false
		case bool, int, int64, float64, json.Number:
			return fmt.Sprint(t), true
		}
	case TypeInteger:
		switch t := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return t, false
		case float64:
			if t == float64(int64(t)) {
				return int(t), true
			}
		case float32:
			if t == float32(int64(t)) {
				return int(t), true
			}
		case json.Number:
			if n, err := t.Int64(); err == nil {
				return int(n), true
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n, true
			}
		}
	case TypeNumber:
		switch t := value.(type) {
		case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return t, false
		case json.Number:
			if n, err := t.Float64(); err == nil {
				return n, true
			}
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return n, true
			}
		}
	case TypeBoolean:
		switch t := value.(type) {
		case bool:
			return t, false
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b, true
			}
		}
	case TypeArray:
		return v.array(path, f, value)
	case TypeObject:
		if len(f.Fields) == 0 {
			m, changed, ok := asObject(value)
			if ok {
				if changed {
					return m, true
				}
				return value, false
			}
		} else {
			before := len(v.errs)
			out, changed := v.object(path, f.Fields, value)
			if len(v.errs) > before {
				return nil, false
			}
			return out, changed
		}
	}
	v.fail(path, "expected %s, got %s", f.Type, kindOf(value))
	return nil, false
}

func (v *validator) array(path string, f Field, value any) (any, bool) {
	items, changed := asArray(value)
	if f.Items == nil {
		return items, changed
	}

	out := items
	copied := false
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		if item == nil {
			v.fail(itemPath, "null element")
			continue
		}
		nv, c := v.value(itemPath, *f.Items, item)
		if !c {
			continue
		}
		if !copied {
			out = append([]any(nil), items...)
			copied = true
		}
		out[i] = nv
		changed = true
	}
	return out, changed
}

// asObject returns value as a map. The bool changed is true when a conversion
// was needed, ok is false when value cannot be read as an object.
func asObject(value any) (m map[string]any, changed bool, ok bool) {
	switch t := value.(type) {
	case map[string]any:
		return t, false, true
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(t), &decoded); err == nil && decoded != nil {
			return decoded, true, true
		}
		return nil, false, false
	case nil:
		return nil, false, false
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map && rv.Kind() != reflect.Struct {
		return nil, false, false
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false, false
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil || decoded == nil {
		return nil, false, false
	}
	return decoded, true, true
}

// asArray returns value as []any, decoding JSON strings and wrapping scalars.
func asArray(value any) ([]any, bool) {
	switch t := value.(type) {
	case []any:
		return t, false
	case string:
		trimmed := strings.TrimSpace(t)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return decoded, true
			}
		}
		return []any{t}, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return []any{value}, true
}

func kindOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return reflect.TypeOf(value).String()
}
