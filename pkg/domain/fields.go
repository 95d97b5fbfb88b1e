package domain

import (
	"fmt"
	"strings"
)

// FieldType enumerates the supported question kinds.
type FieldType string

// Closed set of field types accepted at mutation time.
const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
)

// FieldTypes lists the enumeration in display order.
func FieldTypes() []FieldType {
	return []FieldType{FieldText, FieldTextarea, FieldSelect, FieldRadio, FieldCheckbox}
}

// Valid reports whether t belongs to the enumeration.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldTextarea, FieldSelect, FieldRadio, FieldCheckbox:
		return true
	default:
		return false
	}
}

// HasOptions reports whether options are meaningful for the type.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldRadio || t == FieldCheckbox
}

// ParseFieldType converts raw input into a FieldType.
func ParseFieldType(raw string) (FieldType, error) {
	t := FieldType(strings.ToLower(strings.TrimSpace(raw)))
	if t == "" {
		return "", ValidationError{Field: "type", Code: CodeRequired, Message: "field type is required"}
	}
	if !t.Valid() {
		return "", ValidationError{Field: "type", Code: CodeInvalidFieldType, Message: fmt.Sprintf("unknown field type %q", raw)}
	}
	return t, nil
}

// ParseOptions splits a comma-separated option source, trimming whitespace
// and dropping empty segments while preserving order.
func ParseOptions(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if opt := strings.TrimSpace(p); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}
