package config

import "reflect"

// Merge combines two decoded YAML values. The semantics are fixed and
// explicit rather than inherited from map behavior:
//
//   - mapping over mapping: recurse per key, keys only present on one side
//     are kept as-is
//   - sequence over sequence: union, base elements first, override elements
//     appended unless an equal element already exists in the base
//   - anything else: override wins (scalars replace, and a type mismatch
//     such as scalar-over-mapping replaces wholesale)
//
// A nil override leaves the base untouched. Merge is associative only when
// the overrides touch disjoint keys; precedence is always "later wins".
func Merge(base, override any) any {
	if override == nil {
		return base
	}

	switch baseVal := base.(type) {
	case map[string]any:
		overrideMap, ok := override.(map[string]any)
		if !ok {
			return override
		}
		merged := make(map[string]any, len(baseVal)+len(overrideMap))
		for k, v := range baseVal {
			merged[k] = v
		}
		for k, v := range overrideMap {
			if existing, ok := merged[k]; ok {
				merged[k] = Merge(existing, v)
			} else {
				merged[k] = v
			}
		}
		return merged

	case []any:
		overrideSeq, ok := override.([]any)
		if !ok {
			return override
		}
		merged := make([]any, 0, len(baseVal)+len(overrideSeq))
		merged = append(merged, baseVal...)
		for _, item := range overrideSeq {
			if !containsValue(baseVal, item) {
				merged = append(merged, item)
			}
		}
		return merged

	default:
		return override
	}
}

func containsValue(seq []any, item any) bool {
	for _, existing := range seq {
		if reflect.DeepEqual(existing, item) {
			return true
		}
	}
	return false
}
