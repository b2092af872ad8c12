package database

import (
	"strings"
)

// StatementClass selects how a SQL string is executed.
type StatementClass int

const (
	// ClassRead returns rows.
	ClassRead StatementClass = iota
	// ClassMutate returns affected-row counts.
	ClassMutate
	// ClassScript runs several statements as one script and returns only success.
	ClassScript
)

func (c StatementClass) String() string {
	switch c {
	case ClassRead:
		return "READ"
	case ClassMutate:
		return "MUTATE"
	case ClassScript:
		return "SCRIPT"
	default:
		return "UNKNOWN"
	}
}

// DefaultReadKeywords are the leading keywords treated as row-returning.
var DefaultReadKeywords = []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN"}

// Dispatcher classifies SQL by syntax alone. It is not a parser: a semicolon inside a
// string literal makes a statement look like a script, and a CTE that ends in an
// UPDATE still classifies as READ.
type Dispatcher struct {
	read map[string]struct{}
}

// NewDispatcher builds a dispatcher over the given read keyword allow-list.
// An empty list falls back to DefaultReadKeywords.
func NewDispatcher(readKeywords []string) *Dispatcher {
	if len(readKeywords) == 0 {
		readKeywords = DefaultReadKeywords
	}
	read := make(map[string]struct{}, len(readKeywords))
	for _, kw := range readKeywords {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw != "" {
			read[kw] = struct{}{}
		}
	}
	return &Dispatcher{read: read}
}

// Classify picks the execution mode for sqlText.
func (d *Dispatcher) Classify(sqlText string) StatementClass {
	text := normalize(sqlText)
	if strings.Contains(text, ";") {
		return ClassScript
	}
	if _, ok := d.read[firstKeyword(text)]; ok {
		return ClassRead
	}
	return ClassMutate
}

// Classify uses the default read keywords.
func Classify(sqlText string) StatementClass {
	return defaultDispatcher.Classify(sqlText)
}

var defaultDispatcher = NewDispatcher(nil)

// normalize trims surrounding whitespace and any trailing statement terminators,
// so "SELECT 1;" stays a single statement.
func normalize(sqlText string) string {
	text := strings.TrimSpace(sqlText)
	for strings.HasSuffix(text, ";") {
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}
	return text
}

func firstKeyword(text string) string {
	end := strings.IndexFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end < 0 {
		end = len(text)
	}
	return strings.ToUpper(text[:end])
}
