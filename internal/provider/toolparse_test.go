package provider

import (
	"testing"

	"toolpilot/internal/domain"
)

var parseCatalogue = []domain.CapabilityDescriptor{
	{Name: "list_dir"},
	{Name: "read_file"},
	{Name: "web_search"},
}

func TestExtractToolCalls_SingleObject(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "list_dir", "arguments": {"path": "src"}}`, parseCatalogue)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "list_dir" || calls[0].Arguments["path"] != "src" {
		t.Fatalf("unexpected call %+v", calls[0])
	}
	if calls[0].ID != "extracted_0" {
		t.Fatalf("expected positional id, got %q", calls[0].ID)
	}
}

func TestExtractToolCalls_ParametersField(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "read_file", "parameters": {"path": "notes.txt"}}`, parseCatalogue)
	if len(calls) != 1 || calls[0].Arguments["path"] != "notes.txt" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestExtractToolCalls_Array(t *testing.T) {
	calls := extractToolCallsFromContent(`[{"name": "list_dir", "arguments": {}}, {"name": "read_file", "arguments": {"path": "a"}}]`, parseCatalogue)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Fatal("ids must be distinct")
	}
}

func TestExtractToolCalls_CodeFenceWrapped(t *testing.T) {
	input := "```json\n{\"name\": \"list_dir\", \"arguments\": {\"path\": \".\"}}\n```"
	calls := extractToolCallsFromContent(input, parseCatalogue)
	if len(calls) != 1 || calls[0].Name != "list_dir" {
		t.Fatalf("expected list_dir from code fence, got %+v", calls)
	}
}

func TestExtractToolCalls_SurroundingText(t *testing.T) {
	input := "Sure.\n{\"name\": \"web_search\", \"arguments\": {\"query\": \"go {generics}\"}}\nLet me do that."
	calls := extractToolCallsFromContent(input, parseCatalogue)
	if len(calls) != 1 || calls[0].Arguments["query"] != "go {generics}" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestExtractToolCalls_NameVariants(t *testing.T) {
	for _, name := range []string{"ListDir", "list-dir", "LIST_DIR", "listdir"} {
		calls := extractToolCallsFromContent(`{"name": "`+name+`"}`, parseCatalogue)
		if len(calls) != 1 || calls[0].Name != "list_dir" {
			t.Fatalf("%s: expected list_dir, got %+v", name, calls)
		}
		if calls[0].Arguments == nil {
			t.Fatalf("%s: arguments should default to an empty map", name)
		}
	}
}

func TestExtractToolCalls_Rejects(t *testing.T) {
	tests := map[string]string{
		"plain text":      "Sure, let me help you with that!",
		"empty":           "",
		"empty name":      `{"name": "", "arguments": {}}`,
		"unknown name":    `{"name": "delete_everything", "arguments": {}}`,
		"json answer":     `{"title": "Dune", "author": "Herbert"}`,
		"partially known": `[{"name": "list_dir"}, {"name": "rm_rf"}]`,
	}
	for name, input := range tests {
		if calls := extractToolCallsFromContent(input, parseCatalogue); len(calls) != 0 {
			t.Errorf("%s: expected no calls, got %+v", name, calls)
		}
	}
	if calls := extractToolCallsFromContent(`{"name": "list_dir"}`, nil); calls != nil {
		t.Fatal("no catalogue means nothing to recover")
	}
}

func TestExtractToolCalls_InvalidEscapes(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "web_search", "arguments": {"query": "100\% cotton"}}`, parseCatalogue)
	if len(calls) != 1 || calls[0].Arguments["query"] != "100% cotton" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestStripRolePrefix(t *testing.T) {
	tests := map[string]string{
		"assistant\nHello": "Hello",
		"Assistant: Hello": "Hello",
		"Hello":            "Hello",
		"assistants unite": "assistants unite",
	}
	for in, want := range tests {
		if got := stripRolePrefix(in); got != want {
			t.Errorf("stripRolePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindJSONBounds(t *testing.T) {
	s := `prefix {"a": "}"} suffix`
	start, end := findJSONBounds(s)
	if s[start:end] != `{"a": "}"}` {
		t.Fatalf("unexpected bounds %q", s[start:end])
	}
	if start, end := findJSONBounds("no json"); start != -1 || end != -1 {
		t.Fatal("expected no bounds")
	}
}
