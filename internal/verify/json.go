/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package verify

// Small helpers for navigating a generically-unmarshaled JSON document
// (map[string]any) without a chain of type assertions at every call site.
// A missing or wrong-shaped field behaves as "absent", never panics.

func hasKey(doc map[string]any, key string) bool {
	_, ok := doc[key]
	return ok
}

func hasPath(doc map[string]any, path ...string) bool {
	_, ok := navigate(doc, path)
	return ok
}

func navigate(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func str(doc map[string]any, path ...string) string {
	v, ok := navigate(doc, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func obj(doc map[string]any, path ...string) (map[string]any, bool) {
	v, ok := navigate(doc, path)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func arr(doc map[string]any, path ...string) []any {
	v, ok := navigate(doc, path)
	if !ok {
		return nil
	}
	a, _ := v.([]any)
	return a
}

func asObj(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func asArr(v any) []any {
	a, _ := v.([]any)
	return a
}
