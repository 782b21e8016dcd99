package schema

// Example builds a placeholder value that conforms to s. Strings are filled
// with "sample <field>", numbers with 1 and lists with a single element.
func (s *Schema) Example() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return exampleObject(s.Fields)
}

func exampleObject(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = exampleValue(f.Name, f)
	}
	return out
}

func exampleValue(name string, f Field) any {
	switch f.Type {
	case TypeString:
		return "sample " + name
	case TypeInteger:
		return 1
	case TypeNumber:
		return 1.0
	case TypeBoolean:
		return true
	case TypeArray:
		if f.Items == nil {
			return []any{}
		}
		return []any{exampleValue(name, *f.Items)}
	case TypeObject:
		return exampleObject(f.Fields)
	}
	return "sample " + name
}
