package shared

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StringArg fetches a string argument from the tool call map, returning an
// empty string when the key is absent or nil.
func StringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	value, ok := args[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// HasArg reports whether key is present and non-nil.
func HasArg(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	value, ok := args[key]
	return ok && value != nil
}

// StringSliceArg coalesces array-like arguments into a trimmed slice of
// strings, handling both []any and singular string inputs.
func StringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	switch typed := raw.(type) {
	case []string:
		return typed
	case []any:
		var result []string
		for _, item := range typed {
			if str := strings.TrimSpace(fmt.Sprint(item)); str != "" {
				result = append(result, str)
			}
		}
		return result
	case string:
		if trimmed := strings.TrimSpace(typed); trimmed != "" {
			return []string{trimmed}
		}
	}
	return nil
}

// IntArg parses an integer-like argument into an int, returning (0,false) if absent or invalid.
func IntArg(args map[string]any, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	value, ok := args[key]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// IntPtrArg is IntArg returning nil when the argument is absent.
func IntPtrArg(args map[string]any, key string) *int {
	if v, ok := IntArg(args, key); ok {
		return &v
	}
	return nil
}

// BoolPtrArg returns nil when the argument is absent so callers can apply
// their own default.
func BoolPtrArg(args map[string]any, key string) *bool {
	if !HasArg(args, key) {
		return nil
	}
	switch v := args[key].(type) {
	case bool:
		return &v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "on":
			b := true
			return &b
		case "false", "0", "no", "n", "off":
			b := false
			return &b
		}
	}
	return nil
}

// BoolValue dereferences b, falling back to def.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Plural returns word with an "s" when n != 1.
func Plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
