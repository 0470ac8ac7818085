package metadata

// Select reports whether meta matches the filter. It is a pure function:
// neither argument is mutated and identical inputs yield identical output.
//
// A field that is absent from meta, or whose value is nil, fails its
// predicate regardless of the operator. A nil filter matches everything.
func Select(meta Metadata, filter Filter) bool {
	if filter == nil {
		return true
	}

	for key, cond := range filter {
		switch key {
		case "$and":
			subs, ok := filterList(cond)
			if !ok {
				return false
			}
			for _, sub := range subs {
				if !Select(meta, sub) {
					return false
				}
			}
		case "$or":
			subs, ok := filterList(cond)
			if !ok {
				return false
			}
			matched := false
			for _, sub := range subs {
				if Select(meta, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			value, exists := meta[key]
			if !exists || value == nil {
				return false
			}
			if sub, ok := operatorMap(cond); ok {
				if !matchOperators(value, sub) {
					return false
				}
			} else if !compareEqual(value, cond) {
				return false
			}
		}
	}

	return true
}

// matchOperators evaluates an operator sub-filter against a stored value.
// All operators must match (AND semantics). Unknown operators fail.
func matchOperators(value any, ops map[string]any) bool {
	for op, operand := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = compareEqual(value, operand)
		case "$ne":
			ok = !compareEqual(value, operand)
		case "$gt":
			ok = compareNumeric(value, operand, func(a, b float64) bool { return a > b })
		case "$gte":
			ok = compareNumeric(value, operand, func(a, b float64) bool { return a >= b })
		case "$lt":
			ok = compareNumeric(value, operand, func(a, b float64) bool { return a < b })
		case "$lte":
			ok = compareNumeric(value, operand, func(a, b float64) bool { return a <= b })
		case "$in":
			ok = memberOf(value, operand)
		case "$nin":
			ok = !memberOf(value, operand)
		default:
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// compareEqual compares two scalar values. Numbers compare numerically
// across integer and floating-point representations.
func compareEqual(a, b any) bool {
	if fa, aok := asFloat64(a); aok {
		fb, bok := asFloat64(b)
		return bok && fa == fb
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// compareNumeric applies cmp to the numeric forms of both values.
// A non-numeric value on either side makes the comparison fail.
func compareNumeric(a, b any, cmp func(a, b float64) bool) bool {
	fa, aok := asFloat64(a)
	fb, bok := asFloat64(b)
	if !aok || !bok {
		return false
	}
	return cmp(fa, fb)
}

// memberOf reports whether the stored scalar value appears in the operand
// array, using the same equality as $eq. The stored value must be a scalar
// and the operand an array; anything else fails. Substring containment is
// deliberately not supported.
func memberOf(value any, operand any) bool {
	items, ok := anyList(operand)
	if !ok {
		return false
	}
	for _, item := range items {
		if compareEqual(value, item) {
			return true
		}
	}
	return false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	default:
		return 0, false
	}
}

// operatorMap converts a field condition into an operator sub-filter.
func operatorMap(cond any) (map[string]any, bool) {
	switch m := cond.(type) {
	case map[string]any:
		return m, true
	case Filter:
		return m, true
	default:
		return nil, false
	}
}

// filterList converts a $and/$or operand into a list of filters.
func filterList(cond any) ([]Filter, bool) {
	switch list := cond.(type) {
	case []Filter:
		return list, true
	case []map[string]any:
		out := make([]Filter, len(list))
		for i, m := range list {
			out[i] = Filter(m)
		}
		return out, true
	case []any:
		out := make([]Filter, 0, len(list))
		for _, item := range list {
			m, ok := operatorMap(item)
			if !ok {
				return nil, false
			}
			out = append(out, Filter(m))
		}
		return out, true
	default:
		return nil, false
	}
}

// anyList converts an $in/$nin operand into a generic slice.
func anyList(operand any) ([]any, bool) {
	switch list := operand.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
