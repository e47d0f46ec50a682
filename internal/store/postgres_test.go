package store

import "testing"

func TestToJSON(t *testing.T) {
	if v := toJSON(nil); v != nil {
		t.Fatalf("nil -> nil expected, got %q", v)
	}
	if got := string(toJSON([]string{"a", "b"})); got != `["a","b"]` {
		t.Fatalf("got %s", got)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected")
	}
	if v := nullIfEmpty("x"); v != "x" {
		t.Fatalf("got %v", v)
	}
}
