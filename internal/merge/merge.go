// Package merge implements the idempotent field-merge step that folds newly
// extracted answers into a state namespace. Keys are only ever set, never
// deleted, and never overwritten with empty values; re-applying the same
// updates is a no-op.
package merge

import (
	"reflect"
	"sort"
)

// Sentinel is the literal agents emit for an intentionally empty answer
// ("no masking required" and the like). It is an ordinary non-empty string,
// so it merges and satisfies completion checks; an empty list does neither.
const Sentinel = "none"

// Apply merges updates into namespace with set-if-absent-or-changed
// semantics: a key is written only when its value is truthy and differs from
// what the namespace already holds. It returns the written keys in sorted
// order. The second application of identical updates returns no keys.
func Apply(namespace map[string]any, updates map[string]any) []string {
	var changed []string
	for k, v := range updates {
		if !Truthy(v) {
			continue
		}
		current, ok := namespace[k]
		if ok && reflect.DeepEqual(current, v) {
			continue
		}
		namespace[k] = v
		changed = append(changed, k)
	}
	sort.Strings(changed)
	return changed
}

// Truthy reports whether v counts as "something to merge". Nil, empty
// strings, empty collections, zero numbers, and false are all nothing.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil() && Truthy(rv.Elem().Interface())
	}
	return true
}

// Complete reports whether every required field is present and truthy in the
// namespace. Completion is computed here, never trusted from a model reply.
func Complete(namespace map[string]any, required []string) bool {
	for _, field := range required {
		if !Truthy(namespace[field]) {
			return false
		}
	}
	return true
}

// Missing returns the required fields not yet truthy in the namespace,
// preserving the declared priority order.
func Missing(namespace map[string]any, required []string) []string {
	missing := []string{}
	for _, field := range required {
		if !Truthy(namespace[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}
