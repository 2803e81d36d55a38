package bind

// CoerceBool normalizes loosely typed input into a tri-state boolean.
// known is false only for nil input. The strings "0" and "false" are false,
// explicit booleans pass through, and any other value is true.
func CoerceBool(v any) (value bool, known bool) {
	switch x := v.(type) {
	case nil:
		return false, false
	case bool:
		return x, true
	case *bool:
		if x == nil {
			return false, false
		}
		return *x, true
	case string:
		return !isFalseString(x), true
	case Symbol:
		return !isFalseString(string(x)), true
	default:
		return true, true
	}
}

func isFalseString(s string) bool {
	return s == "0" || s == "false"
}

func coerceBoolean(v any) any {
	b, known := CoerceBool(v)
	if !known {
		return nil
	}
	return b
}
