package registry

import (
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// validateArguments performs the structural check done before any handler
// runs: arguments must be an object, required keys must be present and
// non-null, and declared properties must have the declared JSON type.
// Unknown keys are allowed.
func validateArguments(schema mcp.ToolInputSchema, arguments any) (map[string]any, error) {
	var args map[string]any
	switch v := arguments.(type) {
	case nil:
		args = map[string]any{}
	case map[string]any:
		args = v
	default:
		return nil, fmt.Errorf("%w: arguments must be an object", ErrInvalidArguments)
	}

	for _, key := range schema.Required {
		if v, ok := args[key]; !ok || v == nil {
			return nil, fmt.Errorf("%w: missing required argument %q", ErrInvalidArguments, key)
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := args[key]
		if value == nil {
			continue
		}
		prop, ok := schema.Properties[key].(map[string]any)
		if !ok {
			continue
		}
		want, _ := prop["type"].(string)
		if want == "" {
			continue
		}
		if !matchesType(value, want) {
			return nil, fmt.Errorf("%w: argument %q must be of type %s", ErrInvalidArguments, key, want)
		}
	}

	return args, nil
}

// matchesType checks a decoded JSON value against a JSON Schema primitive type
func matchesType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}
