package canon_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/calvinalkan/jsondoc/docstore/canon"
)

func Test_Canonicalize_Sorts_Keys_CodePointOrder_When_NoPriority(t *testing.T) {
	t.Parallel()

	out, err := canon.Canonicalize(map[string]any{"b": 1, "a": 2, "c": 3}, canon.Options{})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"a":2,"b":1,"c":3}`
	if strings.TrimRight(string(out), "\n") != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func Test_Canonicalize_Places_Priority_Keys_First(t *testing.T) {
	t.Parallel()

	out, err := canon.Canonicalize(map[string]any{"b": 1, "a": 2, "id": "x", "type": "y"},
		canon.Options{StableKeyOrder: []string{"type", "id"}})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"type":"y","id":"x","a":2,"b":1}`
	if strings.TrimRight(string(out), "\n") != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func Test_Canonicalize_Is_Deterministic_Across_Calls(t *testing.T) {
	t.Parallel()

	value := map[string]any{"z": []any{1, 2, 3}, "a": map[string]any{"y": 1, "x": 2}}

	first, err := canon.Canonicalize(value, canon.DefaultOptions())
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	second, err := canon.Canonicalize(value, canon.DefaultOptions())
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("non-deterministic output:\n%s\nvs\n%s", first, second)
	}
}

func Test_Canonicalize_Returns_ErrCycle_When_Map_SelfReferences(t *testing.T) {
	t.Parallel()

	m := map[string]any{}
	m["self"] = m

	_, err := canon.Canonicalize(m, canon.Options{})
	if !errors.Is(err, canon.ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
}

func Test_Canonicalize_Appends_Exactly_One_Trailing_Newline(t *testing.T) {
	t.Parallel()

	out, err := canon.Canonicalize(map[string]any{"a": 1}, canon.Options{TrailingNewline: true})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if !strings.HasSuffix(string(out), "\n") || strings.HasSuffix(string(out), "\n\n") {
		t.Fatalf("expected exactly one trailing newline, got %q", out)
	}
}

func Test_Canonicalize_Rewrites_CRLF_When_EOLMode_Is_LF(t *testing.T) {
	t.Parallel()

	out, err := canon.Canonicalize(map[string]any{"a": 1, "b": 2}, canon.Options{Indent: 2, EOLMode: canon.LF})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if strings.Contains(string(out), "\r") {
		t.Fatalf("expected no CR bytes, got %q", out)
	}
}

func Test_SafeParse_Rejects_Trailing_Garbage(t *testing.T) {
	t.Parallel()

	_, ok, err := canon.SafeParse([]byte(`{"a":1} garbage`))
	if ok || err == nil {
		t.Fatalf("expected rejection of trailing garbage, ok=%v err=%v", ok, err)
	}
}

func Test_SafeParse_Accepts_Valid_JSON(t *testing.T) {
	t.Parallel()

	v, ok, err := canon.SafeParse([]byte(`{"a":1}`))
	if err != nil || !ok {
		t.Fatalf("safeparse: ok=%v err=%v", ok, err)
	}

	m, isMap := v.(map[string]any)
	if !isMap || len(m) != 1 {
		t.Fatalf("got %#v, want single-key map", v)
	}
}
