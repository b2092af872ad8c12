package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"toolpilot/internal/domain"
)

// ValidationError names the argument that failed schema validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// Validate checks required fields and primitive types. Arguments the schema does not
// declare are accepted untouched.
func Validate(args map[string]any, schema domain.InputSchema) error {
	for _, field := range schema.Required {
		v, exists := args[field]
		if !exists || v == nil {
			return &ValidationError{Field: field, Reason: "missing required field"}
		}
	}

	// Sorted for a stable error when several fields are wrong.
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, ok := schema.Properties[key]
		if !ok || prop.Type == "" {
			continue
		}
		value := args[key]
		if value == nil && !isRequired(schema, key) {
			continue
		}
		if err := validateType(value, prop.Type); err != nil {
			return &ValidationError{Field: key, Reason: err.Error()}
		}
	}
	return nil
}

func isRequired(schema domain.InputSchema, field string) bool {
	for _, r := range schema.Required {
		if r == field {
			return true
		}
	}
	return false
}

func validateType(value any, expected string) error {
	switch expected {
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number":
		if isNumber(value) {
			return nil
		}
	case "integer":
		if isInteger(value) {
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "object":
		if _, ok := value.(map[string]any); ok {
			return nil
		}
	case "array":
		if _, ok := value.([]any); ok {
			return nil
		}
	default:
		return fmt.Errorf("unsupported schema type %q", expected)
	}
	return fmt.Errorf("expected %s but got %s", expected, jsonTypeName(value))
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return float64(v) == math.Trunc(float64(v))
	case float64:
		return !math.IsInf(v, 0) && v == math.Trunc(v)
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if isNumber(value) {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}
