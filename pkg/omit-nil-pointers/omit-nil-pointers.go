package omitnilpointers

import (
	"reflect"
)

// StructFields maps the exported fields of a struct (or pointer to struct) by the given tag,
// falling back to the field name. Nil pointers are skipped, other pointers dereferenced.
func StructFields(value any, tag string) map[string]any {
	v := reflect.Indirect(reflect.ValueOf(value))
	if v.Kind() != reflect.Struct {
		return map[string]any{}
	}

	t := v.Type()
	fields := make(map[string]any, v.NumField())
	for i := range v.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Tag.Get(tag)
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}

		if fv, ok := deref(v.Field(i).Interface()); ok {
			fields[name] = fv
		}
	}

	return fields
}

func deref(value any) (any, bool) {
	if value == nil {
		return nil, false
	}

	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Ptr {
		return value, true
	}
	if v.IsNil() {
		return nil, false
	}

	return v.Elem().Interface(), true
}
