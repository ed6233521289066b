// Package query implements the Mango-style filter/sort/project/paginate
// evaluator. It is pure: no I/O, operates over an in-memory sequence of
// documents represented as map[string]any.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownOperator is returned when a filter condition names an operator
// this package doesn't implement.
var ErrUnknownOperator = errors.New("unknown query operator")

// ErrInvalidProjection is returned when a projection mixes inclusion (1)
// and exclusion (0) values.
var ErrInvalidProjection = errors.New("projection mixes inclusion and exclusion")

// ErrInvalidPagination is returned when skip or limit is negative.
var ErrInvalidPagination = errors.New("skip/limit out of bounds")

// undefined is the sentinel for "field path does not resolve to a value",
// distinct from a document field whose value is JSON null.
type undefinedT struct{}

var undefined = undefinedT{}

// Filter is a raw decoded filter expression: either a field-path map, or a
// logical node keyed by "$and"/"$or"/"$not".
type Filter map[string]any

// Sort maps field path to direction: 1 ascending, -1 descending.
type Sort map[string]int

// Projection maps field path to 1 (include) or 0 (exclude).
type Projection map[string]int

// Spec bundles a full query: Filter, optional Sort, optional Skip/Limit,
// optional Projection.
type Spec struct {
	Filter     Filter
	Sort       Sort
	Skip       int
	Limit      int
	HasLimit   bool
	Projection Projection
}

// Run evaluates spec against docs: filter, then sort, then paginate
// (skip then limit), then project.
func Run(docs []map[string]any, spec Spec) ([]map[string]any, error) {
	if spec.Skip < 0 || spec.Limit < 0 {
		return nil, ErrInvalidPagination
	}

	filtered := make([]map[string]any, 0, len(docs))

	for _, doc := range docs {
		ok, err := Match(doc, spec.Filter)
		if err != nil {
			return nil, err
		}

		if ok {
			filtered = append(filtered, doc)
		}
	}

	if len(spec.Sort) > 0 {
		sortDocs(filtered, spec.Sort)
	}

	paged := paginate(filtered, spec.Skip, spec.Limit, spec.HasLimit)

	if len(spec.Projection) > 0 {
		projected, err := projectAll(paged, spec.Projection)
		if err != nil {
			return nil, err
		}

		return projected, nil
	}

	return paged, nil
}

// Match reports whether doc satisfies filter.
func Match(doc map[string]any, filter Filter) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}

	for key, cond := range filter {
		switch key {
		case "$and":
			filters, err := asFilterList(cond)
			if err != nil {
				return false, err
			}

			for _, f := range filters {
				ok, err := Match(doc, f)
				if err != nil {
					return false, err
				}

				if !ok {
					return false, nil
				}
			}

		case "$or":
			filters, err := asFilterList(cond)
			if err != nil {
				return false, err
			}

			if len(filters) == 0 {
				return false, nil
			}

			matched := false

			for _, f := range filters {
				ok, err := Match(doc, f)
				if err != nil {
					return false, err
				}

				if ok {
					matched = true

					break
				}
			}

			if !matched {
				return false, nil
			}

		case "$not":
			f, ok := cond.(map[string]any)
			if !ok {
				return false, fmt.Errorf("$not: expected a filter object")
			}

			ok2, err := Match(doc, Filter(f))
			if err != nil {
				return false, err
			}

			if ok2 {
				return false, nil
			}

		default:
			value := resolvePath(doc, key)

			ok, err := matchCondition(value, cond)
			if err != nil {
				return false, err
			}

			if !ok {
				return false, nil
			}
		}
	}

	return true, nil
}

func asFilterList(cond any) ([]Filter, error) {
	list, ok := cond.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of filters")
	}

	out := make([]Filter, 0, len(list))

	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a filter object in array")
		}

		out = append(out, Filter(m))
	}

	return out, nil
}

// matchCondition evaluates a single field's condition, which is either a
// literal (equality) or a map of operator => operand.
func matchCondition(value any, cond any) (bool, error) {
	ops, isMap := cond.(map[string]any)
	if !isMap {
		return matchesLiteral(value, cond), nil
	}

	// Distinguish an operator map ("$eq": ...) from a literal object value
	// (e.g. matching meta.owner against an object literal): operator keys
	// always start with "$".
	if !looksLikeOperatorMap(ops) {
		return matchesLiteral(value, cond), nil
	}

	for op, operand := range ops {
		ok, err := evalOperator(value, op, operand)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func looksLikeOperatorMap(m map[string]any) bool {
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

func evalOperator(value any, op string, operand any) (bool, error) {
	switch op {
	case "$eq":
		return matchesLiteral(value, operand), nil
	case "$ne":
		return !matchesLiteral(value, operand), nil
	case "$in":
		list, ok := operand.([]any)
		if !ok {
			return false, fmt.Errorf("%w: $in expects an array", ErrUnknownOperator)
		}

		for _, v := range list {
			if matchesLiteral(value, v) {
				return true, nil
			}
		}

		return false, nil
	case "$nin":
		list, ok := operand.([]any)
		if !ok {
			return false, fmt.Errorf("%w: $nin expects an array", ErrUnknownOperator)
		}

		for _, v := range list {
			if matchesLiteral(value, v) {
				return false, nil
			}
		}

		return true, nil
	case "$gt":
		return compareOp(value, operand, func(c int) bool { return c > 0 })
	case "$gte":
		return compareOp(value, operand, func(c int) bool { return c >= 0 })
	case "$lt":
		return compareOp(value, operand, func(c int) bool { return c < 0 })
	case "$lte":
		return compareOp(value, operand, func(c int) bool { return c <= 0 })
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false, fmt.Errorf("%w: $exists expects a bool", ErrUnknownOperator)
		}

		isUndefined := value == undefined

		if want {
			return !isUndefined, nil
		}

		return isUndefined, nil
	case "$type":
		name, ok := operand.(string)
		if !ok {
			return false, fmt.Errorf("%w: $type expects a string", ErrUnknownOperator)
		}

		return typeName(value) == name, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

func compareOp(value, operand any, accept func(int) bool) (bool, error) {
	c, ok := compare(value, operand)
	if !ok {
		return false, nil
	}

	return accept(c), nil
}

// matchesLiteral implements array-containment equality: if value is an
// array, the condition matches when any element equals operand.
func matchesLiteral(value, operand any) bool {
	if arr, ok := value.([]any); ok {
		for _, el := range arr {
			if deepEqual(el, operand) {
				return true
			}
		}

		return false
	}

	return deepEqual(value, operand)
}

func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := toFloat(b)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}

		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}

		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}

		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}

		return true
	default:
		return a == b
	}
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)

	return f, ok
}

// typePrecedence implements: undefined/null < boolean < number < string < object.
// Arrays (and any other type) fall to the default and rank above objects;
// compare does not order two such values against each other (ok=false).
func typePrecedence(v any) int {
	switch v.(type) {
	case undefinedT:
		return 0
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case map[string]any:
		return 4
	default:
		return 5
	}
}

// compare returns (cmp, ok): ok is false when the values aren't ordered
// relative to each other (e.g. two incomparable objects).
func compare(a, b any) (int, bool) {
	pa, pb := typePrecedence(a), typePrecedence(b)
	if pa != pb {
		if pa < pb {
			return -1, true
		}

		return 1, true
	}

	switch av := a.(type) {
	case float64:
		bv, _ := toFloat(b)
		return cmpFloat(av, bv), true
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv), true
	case bool:
		bv, _ := b.(bool)
		return cmpBool(av, bv), true
	default:
		return 0, false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a && b:
		return -1
	default:
		return 1
	}
}

func typeName(v any) string {
	switch v.(type) {
	case undefinedT:
		return "undefined"
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "undefined"
	}
}

// resolvePath descends doc through dotted path segments, returning
// undefined if any segment is absent or not a mapping.
func resolvePath(doc map[string]any, path string) any {
	segments := strings.Split(path, ".")

	var cur any = doc

	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return undefined
		}

		v, present := m[seg]
		if !present {
			return undefined
		}

		cur = v
	}

	return cur
}

func sortDocs(docs []map[string]any, spec Sort) {
	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}

	sort.Strings(fields) // deterministic tie-break iteration order for building comparator

	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			dir := spec[f]

			vi := resolvePath(docs[i], f)
			vj := resolvePath(docs[j], f)

			c, ok := compare(vi, vj)
			if !ok {
				continue
			}

			if dir < 0 {
				c = -c
			}

			if c != 0 {
				return c < 0
			}
		}

		return false
	})
}

func paginate(docs []map[string]any, skip, limit int, hasLimit bool) []map[string]any {
	if skip >= len(docs) {
		return []map[string]any{}
	}

	docs = docs[skip:]

	if hasLimit && limit < len(docs) {
		docs = docs[:limit]
	}

	return docs
}

func projectAll(docs []map[string]any, proj Projection) ([]map[string]any, error) {
	mode, err := projectionMode(proj)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, len(docs))

	for i, doc := range docs {
		out[i] = project(doc, proj, mode)
	}

	return out, nil
}

type projMode int

const (
	projPassThrough projMode = iota
	projInclude
	projExclude
)

func projectionMode(proj Projection) (projMode, error) {
	if len(proj) == 0 {
		return projPassThrough, nil
	}

	hasInclude, hasExclude := false, false

	for _, v := range proj {
		if v == 1 {
			hasInclude = true
		} else if v == 0 {
			hasExclude = true
		} else {
			return projPassThrough, fmt.Errorf("%w: value %d", ErrInvalidProjection, v)
		}
	}

	if hasInclude && hasExclude {
		return projPassThrough, ErrInvalidProjection
	}

	if hasInclude {
		return projInclude, nil
	}

	return projExclude, nil
}

// project builds a new document honoring inclusion/exclusion. Inclusion
// resolves dotted keys ("a.b"), which are kept dotted in the output rather
// than rebuilt into nested objects. Exclusion matches top-level keys only;
// a dotted exclusion key removes nothing.
func project(doc map[string]any, proj Projection, mode projMode) map[string]any {
	if mode == projPassThrough {
		return doc
	}

	out := make(map[string]any)

	if mode == projInclude {
		for key := range proj {
			v := resolvePath(doc, key)
			if v == undefined {
				continue
			}

			out[key] = v
		}

		// "id"/"type" are conventionally always kept even under inclusion
		// mode if present and not explicitly excluded; spec does not
		// mandate this, so we don't special-case it here.
		return out
	}

	for k, v := range doc {
		if _, excluded := proj[k]; excluded {
			continue
		}

		out[k] = v
	}

	return out
}
