package model

import (
	"time"
)

// FieldType is the declared type of an output attribute.
type FieldType string

// Supported field types.
const (
	FieldString FieldType = "str"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldDate   FieldType = "date"
)

// Accepts reports whether v can be stored in a field of type t. nil is always
// accepted and means "unknown".
func (t FieldType) Accepts(v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldInt:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
	case FieldFloat:
		switch v.(type) {
		case float32, float64, int, int32, int64:
			return true
		}
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldDate:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// Field is a named, typed attribute.
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`
}

// Schema describes a feature collection: its geometry type and ordered fields.
type Schema struct {
	Geometry string  `yaml:"geometry"`
	Fields   []Field `yaml:"fields"`
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
