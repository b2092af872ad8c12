package database

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		sql  string
		want StatementClass
	}{
		{"SELECT 1", ClassRead},
		{"  select * from t", ClassRead},
		{"\n\tSeLeCt id FROM t", ClassRead},
		{"SELECT 1;", ClassRead},
		{"SELECT 1 ;  ", ClassRead},
		{"WITH x AS (SELECT 1) SELECT * FROM x", ClassRead},
		{"PRAGMA table_info(books)", ClassRead},
		{"EXPLAIN QUERY PLAN SELECT 1", ClassRead},
		{"select(1)", ClassRead},
		{"INSERT INTO t VALUES (1)", ClassMutate},
		{"update t set a = 1", ClassMutate},
		{"DELETE FROM t", ClassMutate},
		{"CREATE TABLE t (id INTEGER)", ClassMutate},
		{"INSERT INTO t VALUES(1); SELECT 1", ClassScript},
		{"SELECT 1; DROP TABLE t", ClassScript},
		{"CREATE TABLE a(x); CREATE TABLE b(y);", ClassScript},
		{"SELECT 'a;b'", ClassScript},
		{"", ClassMutate},
	}

	for _, tc := range tests {
		if got := Classify(tc.sql); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.sql, got, tc.want)
		}
	}
}

func TestDispatcher_CustomReadKeywords(t *testing.T) {
	d := NewDispatcher([]string{"select", " values "})

	if got := d.Classify("VALUES (1), (2)"); got != ClassRead {
		t.Fatalf("VALUES should be READ with custom keywords, got %s", got)
	}
	if got := d.Classify("PRAGMA user_version"); got != ClassMutate {
		t.Fatalf("PRAGMA is not in the custom list, got %s", got)
	}
}

func TestStatementClass_String(t *testing.T) {
	if ClassRead.String() != "READ" || ClassMutate.String() != "MUTATE" || ClassScript.String() != "SCRIPT" {
		t.Fatal("unexpected class names")
	}
}
