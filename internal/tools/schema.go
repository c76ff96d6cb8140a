package tools

import "fmt"

// ValidateParams validates params against a JSON-schema object (the
// subset) and returns every violation found — it does
// not stop at the first error ("validation
// errors refer only to paths that exist in either the schema's required
// list or params").
func ValidateParams(schema map[string]interface{}, params map[string]interface{}) []string {
	var errs []string
	validateObject("", schema, params, &errs)
	return errs
}

func validateObject(path string, schema map[string]interface{}, value map[string]interface{}, errs *[]string) {
	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := value[name]; !present {
				*errs = append(*errs, fmt.Sprintf("%s: missing required field", joinPath(path, name)))
			}
		}
	} else if requiredAny, ok := schema["required"].([]interface{}); ok {
		for _, r := range requiredAny {
			name, _ := r.(string)
			if name == "" {
				continue
			}
			if _, present := value[name]; !present {
				*errs = append(*errs, fmt.Sprintf("%s: missing required field", joinPath(path, name)))
			}
		}
	}

	props, _ := schema["properties"].(map[string]interface{})
	for name, raw := range value {
		propSchema, ok := props[name].(map[string]interface{})
		if !ok {
			continue // unknown keys are ignored, not rejected
		}
		validateValue(joinPath(path, name), propSchema, raw, errs)
	}
}

func validateValue(path string, schema map[string]interface{}, value interface{}, errs *[]string) {
	typ, _ := schema["type"].(string)

	switch typ {
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected object", path))
			return
		}
		validateObject(path, schema, obj, errs)
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected array", path))
			return
		}
		itemSchema, _ := schema["items"].(map[string]interface{})
		if itemSchema != nil {
			for i, item := range arr {
				validateValue(fmt.Sprintf("%s[%d]", path, i), itemSchema, item, errs)
			}
		}
	case "string":
		s, ok := value.(string)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected string", path))
			return
		}
		if minLen, ok := numVal(schema["minLength"]); ok && float64(len(s)) < minLen {
			*errs = append(*errs, fmt.Sprintf("%s: shorter than minLength %v", path, minLen))
		}
		if maxLen, ok := numVal(schema["maxLength"]); ok && float64(len(s)) > maxLen {
			*errs = append(*errs, fmt.Sprintf("%s: longer than maxLength %v", path, maxLen))
		}
		validateEnum(path, schema, s, errs)
	case "number", "integer":
		n, ok := numVal(value)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected number", path))
			return
		}
		if min, ok := numVal(schema["minimum"]); ok && n < min {
			*errs = append(*errs, fmt.Sprintf("%s: below minimum %v", path, min))
		}
		if max, ok := numVal(schema["maximum"]); ok && n > max {
			*errs = append(*errs, fmt.Sprintf("%s: above maximum %v", path, max))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected boolean", path))
		}
	default:
		// No declared type (or unrecognized): only enum constraint applies.
		validateEnum(path, schema, value, errs)
	}
}

func validateEnum(path string, schema map[string]interface{}, value interface{}, errs *[]string) {
	enumRaw, ok := schema["enum"].([]interface{})
	if !ok {
		return
	}
	for _, e := range enumRaw {
		if fmt.Sprint(e) == fmt.Sprint(value) {
			return
		}
	}
	*errs = append(*errs, fmt.Sprintf("%s: value not in enum", path))
}

func numVal(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func fieldLabel(path string) string {
	if path == "" {
		return "params"
	}
	return path
}
