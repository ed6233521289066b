package query_test

import (
	"testing"

	"github.com/calvinalkan/jsondoc/docstore/query"
)

func docs() []map[string]any {
	return []map[string]any{
		{"id": "1", "name": "alice", "age": 30.0, "tags": []any{"a", "b"}},
		{"id": "2", "name": "bob", "age": 25.0, "tags": []any{"b", "c"}},
		{"id": "3", "name": "carol", "age": 40.0, "meta": map[string]any{"owner": "alice"}},
	}
}

func Test_Match_Eq_Literal_And_Operator_Form_Agree(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"name": "alice"}

	ok1, err := query.Match(doc, query.Filter{"name": "alice"})
	if err != nil || !ok1 {
		t.Fatalf("literal match failed: ok=%v err=%v", ok1, err)
	}

	ok2, err := query.Match(doc, query.Filter{"name": map[string]any{"$eq": "alice"}})
	if err != nil || !ok2 {
		t.Fatalf("$eq match failed: ok=%v err=%v", ok2, err)
	}
}

func Test_Match_Array_Field_Uses_Containment_Equality(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"tags": []any{"a", "b"}}

	ok, err := query.Match(doc, query.Filter{"tags": "a"})
	if err != nil || !ok {
		t.Fatalf("expected containment match, ok=%v err=%v", ok, err)
	}

	ok, err = query.Match(doc, query.Filter{"tags": "z"})
	if err != nil || ok {
		t.Fatalf("expected no match for absent element, ok=%v err=%v", ok, err)
	}
}

func Test_Match_Exists_Distinguishes_Undefined_From_Null(t *testing.T) {
	t.Parallel()

	withNull := map[string]any{"a": nil}
	without := map[string]any{}

	ok, err := query.Match(withNull, query.Filter{"a": map[string]any{"$exists": true}})
	if err != nil || !ok {
		t.Fatalf("null field should satisfy $exists:true, ok=%v err=%v", ok, err)
	}

	ok, err = query.Match(without, query.Filter{"a": map[string]any{"$exists": true}})
	if err != nil || ok {
		t.Fatalf("missing field should not satisfy $exists:true, ok=%v err=%v", ok, err)
	}

	ok, err = query.Match(without, query.Filter{"a": map[string]any{"$exists": false}})
	if err != nil || !ok {
		t.Fatalf("missing field should satisfy $exists:false, ok=%v err=%v", ok, err)
	}
}

func Test_Match_And_Or_Not_Compose(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"age": 30.0, "name": "alice"}

	filter := query.Filter{
		"$and": []any{
			map[string]any{"age": map[string]any{"$gte": 18.0}},
			map[string]any{"$or": []any{
				map[string]any{"name": "alice"},
				map[string]any{"name": "bob"},
			}},
			map[string]any{"$not": map[string]any{"name": "carol"}},
		},
	}

	ok, err := query.Match(doc, filter)
	if err != nil || !ok {
		t.Fatalf("composed filter should match, ok=%v err=%v", ok, err)
	}
}

func Test_Compare_Orders_By_TypePrecedence_When_Types_Differ(t *testing.T) {
	t.Parallel()

	docsByType := docs()
	delete(docsByType[2], "age")

	result, err := query.Run(docsByType, query.Spec{
		Sort: query.Sort{"age": 1},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("len = %d, want 3", len(result))
	}

	// carol has no "age" field (resolves to undefined, sorts first ascending).
	if result[0]["name"] != "carol" {
		t.Fatalf("result[0] = %v, want carol first (undefined sorts lowest)", result[0]["name"])
	}
}

func Test_Run_Applies_Skip_And_Limit_After_Sort(t *testing.T) {
	t.Parallel()

	result, err := query.Run(docs(), query.Spec{
		Sort:     query.Sort{"name": 1},
		Skip:     1,
		Limit:    1,
		HasLimit: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result) != 1 || result[0]["name"] != "bob" {
		t.Fatalf("result = %v, want single doc 'bob'", result)
	}
}

func Test_Run_Projection_Inclusion_Keeps_Only_Named_Fields(t *testing.T) {
	t.Parallel()

	result, err := query.Run([]map[string]any{{"id": "1", "name": "alice", "age": 30.0}}, query.Spec{
		Projection: query.Projection{"name": 1},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result) != 1 || len(result[0]) != 1 || result[0]["name"] != "alice" {
		t.Fatalf("result = %v, want only 'name'", result)
	}
}

func Test_Run_Projection_Rejects_Mixed_Inclusion_Exclusion(t *testing.T) {
	t.Parallel()

	_, err := query.Run(docs(), query.Spec{
		Projection: query.Projection{"name": 1, "age": 0},
	})
	if err == nil {
		t.Fatal("expected error for mixed projection")
	}
}

func Test_Run_Rejects_Negative_Skip_Or_Limit(t *testing.T) {
	t.Parallel()

	_, err := query.Run(docs(), query.Spec{Skip: -1})
	if err == nil {
		t.Fatal("expected error for negative skip")
	}
}

func Test_Match_Unknown_Operator_Returns_Error(t *testing.T) {
	t.Parallel()

	_, err := query.Match(map[string]any{"a": 1.0}, query.Filter{"a": map[string]any{"$bogus": 1}})
	if err == nil {
		t.Fatal("expected error for unknown operator")
	}
}

func Test_Match_Dotted_Path_Resolves_Nested_Field(t *testing.T) {
	t.Parallel()

	ok, err := query.Match(docs()[2], query.Filter{"meta.owner": "alice"})
	if err != nil || !ok {
		t.Fatalf("dotted path match failed: ok=%v err=%v", ok, err)
	}
}
