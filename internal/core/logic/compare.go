package logic

// Compare applies op to two values. Numbers of any Go numeric type compare as
// float64, strings lexically, booleans only by (in)equality. Operands of
// different kinds never compare true.
func Compare(left any, op string, right any) bool {
	if lf, ok := toFloat(left); ok {
		rf, ok := toFloat(right)
		if !ok {
			return false
		}
		return ordered(lf < rf, lf == rf, op)
	}

	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return false
		}
		return ordered(l < r, l == r, op)
	case bool:
		r, ok := right.(bool)
		if !ok {
			return false
		}
		switch op {
		case "==":
			return l == r
		case "!=":
			return l != r
		}
	}
	return false
}

func ordered(less, equal bool, op string) bool {
	switch op {
	case "<":
		return less
	case "<=":
		return less || equal
	case ">":
		return !less && !equal
	case ">=":
		return !less
	case "==":
		return equal
	case "!=":
		return !equal
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
