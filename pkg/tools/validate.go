package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// validateArgs checks args against a JSON-schema-shaped parameter
// description. It enforces required fields, coerces scalars where the
// conversion is lossless (string<->number, bool literals), and rejects
// unknown fields unless allowUnknown is set. A nil or shapeless schema
// accepts anything.
//
// On success the returned map holds the coerced arguments; otherwise the
// missing-field and type-error lists describe every problem found.
func validateArgs(schema map[string]any, args map[string]any, allowUnknown bool) (map[string]any, []string, []string) {
	if args == nil {
		args = map[string]any{}
	}
	if schema == nil {
		return args, nil, nil
	}

	properties, _ := schema["properties"].(map[string]any)
	if properties == nil {
		return args, nil, nil
	}

	var missing, typeErrors []string

	for _, name := range requiredFields(schema) {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}

	coerced := make(map[string]any, len(args))
	for name, value := range args {
		propAny, known := properties[name]
		if !known {
			if !allowUnknown {
				typeErrors = append(typeErrors, fmt.Sprintf("%s: unknown field", name))
			} else {
				coerced[name] = value
			}
			continue
		}

		prop, _ := propAny.(map[string]any)
		wantType, _ := prop["type"].(string)
		if wantType == "" {
			coerced[name] = value
			continue
		}

		converted, err := coerceValue(value, wantType)
		if err != nil {
			typeErrors = append(typeErrors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		coerced[name] = converted
	}

	sort.Strings(missing)
	sort.Strings(typeErrors)

	if len(missing) > 0 || len(typeErrors) > 0 {
		return nil, missing, typeErrors
	}
	return coerced, nil, nil
}

func requiredFields(schema map[string]any) []string {
	var out []string
	switch req := schema["required"].(type) {
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = req
	}
	return out
}

// coerceValue converts value to the schema type where the conversion is
// unambiguous and lossless.
func coerceValue(value any, wantType string) (any, error) {
	switch wantType {
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		case json.Number:
			return v.String(), nil
		case int:
			return strconv.Itoa(v), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)

	case "number":
		if f, ok := toFloat(value); ok {
			return f, nil
		}
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, nil
			}
		}
		return nil, fmt.Errorf("expected number, got %T", value)

	case "integer":
		if f, ok := toFloat(value); ok {
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("expected integer, got fractional %v", f)
			}
			return int64(f), nil
		}
		if s, ok := value.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		return nil, fmt.Errorf("expected integer, got %T", value)

	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			if v == "true" || v == "false" {
				return v == "true", nil
			}
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)

	case "array":
		if v, ok := value.([]any); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected array, got %T", value)

	case "object":
		if v, ok := value.(map[string]any); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected object, got %T", value)

	default:
		return value, nil
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
