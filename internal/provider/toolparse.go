package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"toolpilot/internal/domain"
)

// extractToolCallsFromContent recovers tool calls that a model wrote into its text
// instead of the structured tool_calls field. Smaller OpenAI-compatible models
// (notably through Ollama) do this. Recognized shapes:
//   - Pure JSON: `{"name":"list_dir","arguments":{...}}`
//   - Code-fenced: ```json\n{...}\n```
//   - Prefixed or suffixed text: `Sure.\n{"name":"list_dir",...}\nLet me do that.`
//
// Only names present in the catalogue are accepted, so ordinary JSON answers are
// not mistaken for calls. IDs are assigned by position.
func extractToolCallsFromContent(content string, catalogue []domain.CapabilityDescriptor) []domain.ToolCall {
	if len(catalogue) == 0 {
		return nil
	}
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	calls := tryParseToolJSON(content)
	if len(calls) == 0 {
		if start, end := findJSONBounds(content); start >= 0 && end > start {
			calls = tryParseToolJSON(content[start:end])
		}
	}

	known := newNameIndex(catalogue)
	out := make([]domain.ToolCall, 0, len(calls))
	for _, c := range calls {
		name, ok := known.resolve(c.Name)
		if !ok {
			return nil
		}
		c.Name = name
		c.ID = fmt.Sprintf("extracted_%d", len(out))
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// findJSONBounds locates the first top-level JSON object ({}) or array ([]) in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	var closeChar byte
	if openChar == '{' {
		closeChar = '}'
	} else {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type embeddedCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

// tryParseToolJSON parses raw as a single call object or an array of them.
func tryParseToolJSON(raw string) []domain.ToolCall {
	text := raw
	var single embeddedCall
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(text)
		_ = json.Unmarshal([]byte(text), &single)
	}
	if single.Name != "" {
		return []domain.ToolCall{{
			Name:      single.Name,
			Arguments: coalesce(single.Parameters, single.Arguments),
		}}
	}

	var multi []embeddedCall
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		_ = json.Unmarshal([]byte(sanitizeJSONEscapes(raw)), &multi)
	}
	var calls []domain.ToolCall
	for _, tc := range multi {
		if tc.Name == "" {
			continue
		}
		calls = append(calls, domain.ToolCall{
			Name:      tc.Name,
			Arguments: coalesce(tc.Parameters, tc.Arguments),
		})
	}
	return calls
}

// nameIndex maps loosely written names ("ListDir", "list-dir") to catalogue names.
type nameIndex map[string]string

func newNameIndex(catalogue []domain.CapabilityDescriptor) nameIndex {
	idx := make(nameIndex, len(catalogue))
	for _, d := range catalogue {
		idx[foldName(d.Name)] = d.Name
	}
	return idx
}

func (idx nameIndex) resolve(name string) (string, bool) {
	canonical, ok := idx[foldName(name)]
	return canonical, ok
}

func foldName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}

// stripRolePrefix removes role names some models leak into their content,
// e.g. "assistant\nHello" or "Assistant: Hello".
func stripRolePrefix(content string) string {
	prefixes := []string{
		"assistant\n",
		"Assistant\n",
		"assistant:\n",
		"Assistant:\n",
		"assistant: ",
		"Assistant: ",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

// coalesce returns the first non-nil map, or an empty map if both are nil.
func coalesce(a, b map[string]any) map[string]any {
	if a != nil {
		return a
	}
	if b != nil {
		return b
	}
	return make(map[string]any)
}

// sanitizeJSONEscapes drops the backslash from escape sequences JSON does not allow
// (e.g. \% or \Y), which some models emit.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
