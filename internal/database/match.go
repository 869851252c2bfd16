package database

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/pypeclub/tmplbuild/api"
)

// Match reports whether doc satisfies every clause of filter.
func Match(doc api.Document, filter api.Filter) (bool, error) {
	for path, want := range filter {
		got := lookup(doc, path)
		ok, err := matchClause(got, want)
		if err != nil {
			return false, fmt.Errorf("filter %q: %w", path, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// lookup resolves a dotted path against doc. Array values are flattened one
// level so that equality on an array field means membership.
func lookup(doc api.Document, path string) []any {
	x := jp.R()
	for _, part := range strings.Split(path, ".") {
		x = x.C(part)
	}
	var out []any
	for _, v := range x.Get(doc) {
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func matchClause(got []any, want any) (bool, error) {
	ops, ok := want.(map[string]any)
	if !ok || !isOperatorMap(ops) {
		return anyEqual(got, want), nil
	}
	for op, arg := range ops {
		var (
			ok  bool
			err error
		)
		switch op {
		case "$eq":
			ok = anyEqual(got, arg)
		case "$in":
			ok, err = matchIn(got, arg)
		case "$regex":
			ok, err = matchRegex(got, arg)
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func matchIn(got []any, arg any) (bool, error) {
	var candidates []any
	switch v := arg.(type) {
	case []any:
		candidates = v
	case []string:
		for _, s := range v {
			candidates = append(candidates, s)
		}
	default:
		return false, fmt.Errorf("$in expects a list, got %T", arg)
	}
	for _, c := range candidates {
		if anyEqual(got, c) {
			return true, nil
		}
	}
	return false, nil
}

func matchRegex(got []any, arg any) (bool, error) {
	pattern, ok := arg.(string)
	if !ok {
		return false, fmt.Errorf("$regex expects a string, got %T", arg)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid $regex %q: %w", pattern, err)
	}
	for _, g := range got {
		if s, ok := g.(string); ok && re.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

func anyEqual(got []any, want any) bool {
	for _, g := range got {
		if equal(g, want) {
			return true
		}
	}
	return false
}

// equal compares scalars, treating all numeric kinds as float64.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
