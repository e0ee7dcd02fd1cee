// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package splitter

import (
	"strings"
	"testing"
)

func TestSplitBasic(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "two statements",
			script: "SELECT 1; SELECT 2;",
			want:   []string{"SELECT 1;", "SELECT 2;"},
		},
		{
			name:   "single statement without terminator",
			script: "SELECT 1",
			want:   []string{"SELECT 1"},
		},
		{
			name:   "empty input",
			script: "",
			want:   nil,
		},
		{
			name:   "whitespace only",
			script: "   \n  ",
			want:   nil,
		},
		{
			name:   "semicolon only",
			script: ";",
			want:   []string{";"},
		},
		{
			name:   "trailing text after last semicolon",
			script: "SELECT 1; SELECT 2",
			want:   []string{"SELECT 1;", "SELECT 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.script)
			if len(got) != len(tt.want) {
				t.Fatalf("Split() returned %d statements, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("statement %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitQuoting(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		wantCount int
		wantFirst string
	}{
		{
			name:      "semicolon inside single quotes",
			script:    "SELECT 'a;b'; SELECT 2;",
			wantCount: 2,
			wantFirst: "SELECT 'a;b';",
		},
		{
			name:      "escaped quote inside literal",
			script:    "SELECT 'O''Reilly'; SELECT 1;",
			wantCount: 2,
			wantFirst: "SELECT 'O''Reilly';",
		},
		{
			name:      "tagged dollar quote with semicolon",
			script:    "SELECT $tag$ ; $tag$; SELECT 2;",
			wantCount: 2,
			wantFirst: "SELECT $tag$ ; $tag$;",
		},
		{
			name:      "anonymous dollar quote",
			script:    "SELECT $$a;b$$; SELECT 2;",
			wantCount: 2,
			wantFirst: "SELECT $$a;b$$;",
		},
		{
			name:      "unterminated quote absorbs rest",
			script:    "SELECT 'unterminated; SELECT 2;",
			wantCount: 1,
			wantFirst: "SELECT 'unterminated; SELECT 2;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.script)
			if len(got) != tt.wantCount {
				t.Fatalf("Split() returned %d statements, want %d: %v", len(got), tt.wantCount, got)
			}
			if got[0] != tt.wantFirst {
				t.Errorf("first statement = %q, want %q", got[0], tt.wantFirst)
			}
		})
	}
}

func TestSplitFunctionBody(t *testing.T) {
	script := "CREATE FUNCTION foo() AS $$ BEGIN; RETURN; END; $$ LANGUAGE plpgsql; SELECT 1;"
	got := Split(script)
	if len(got) != 2 {
		t.Fatalf("Split() returned %d statements, want 2: %v", len(got), got)
	}
	if !strings.Contains(got[0], "$$ BEGIN; RETURN; END; $$") {
		t.Errorf("function body was split: %q", got[0])
	}
	if got[1] != "SELECT 1;" {
		t.Errorf("second statement = %q, want %q", got[1], "SELECT 1;")
	}
}

func TestSplitDifferentTagInsideDollarQuote(t *testing.T) {
	// A differently-tagged dollar token inside an open dollar quote is
	// ordinary text and must not close the quote.
	script := "SELECT $a$ $b$ ; $a$; SELECT 2;"
	got := Split(script)
	if len(got) != 2 {
		t.Fatalf("Split() returned %d statements, want 2: %v", len(got), got)
	}
	if got[0] != "SELECT $a$ $b$ ; $a$;" {
		t.Errorf("first statement = %q", got[0])
	}
}

func TestSplitComments(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		wantCount int
	}{
		{
			name:      "line comment hides semicolon",
			script:    "SELECT 1; -- comment with ; inside \n SELECT 2;",
			wantCount: 2,
		},
		{
			name:      "block comment hides semicolon",
			script:    "SELECT /* ; */ 1; SELECT 2;",
			wantCount: 2,
		},
		{
			name:      "line comment at end of input",
			script:    "SELECT 1; -- trailing",
			wantCount: 2,
		},
		{
			name:      "unterminated block comment absorbs rest",
			script:    "SELECT 1; /* open comment ; SELECT 2;",
			wantCount: 2,
		},
		{
			name:      "first close ends block comment (no nesting)",
			script:    "SELECT /* outer /* inner */ 1; SELECT 2;",
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.script)
			if len(got) != tt.wantCount {
				t.Fatalf("Split() returned %d statements, want %d: %v", len(got), tt.wantCount, got)
			}
		})
	}
}

func TestSplitLineCommentKeepsFollowingStatement(t *testing.T) {
	got := Split("SELECT 1; -- comment with ; inside \n SELECT 2;")
	if len(got) != 2 {
		t.Fatalf("Split() returned %d statements, want 2: %v", len(got), got)
	}
	if !strings.Contains(got[1], "SELECT 2;") {
		t.Errorf("second statement %q does not contain SELECT 2;", got[1])
	}
}

func TestSplitOrderPreserved(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("SELECT ")
		sb.WriteString(strings.Repeat("x", i+1))
		sb.WriteString(";\n")
	}
	got := Split(sb.String())
	if len(got) != 20 {
		t.Fatalf("Split() returned %d statements, want 20", len(got))
	}
	for i, stmt := range got {
		want := "SELECT " + strings.Repeat("x", i+1) + ";"
		if stmt != want {
			t.Errorf("statement %d = %q, want %q", i, stmt, want)
		}
	}
}

func TestSplitIdempotent(t *testing.T) {
	scripts := []string{
		"SELECT 1; SELECT 'a;b'; SELECT $q$ ; $q$; -- c ; \n SELECT 2;",
		"CREATE FUNCTION foo() AS $$ BEGIN; RETURN; END; $$ LANGUAGE plpgsql; SELECT 1;",
		"INSERT INTO t VALUES ('O''Reilly'); UPDATE t SET a = 1;",
	}

	for _, script := range scripts {
		first := Split(script)
		second := Split(strings.Join(first, " "))
		if len(first) != len(second) {
			t.Errorf("re-splitting %q changed count: %d -> %d", script, len(first), len(second))
		}
	}
}
