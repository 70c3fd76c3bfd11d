package database

import (
	"strings"
	"testing"
)

func TestRebind(t *testing.T) {
	q := "SELECT id FROM users WHERE username = ? AND name <> '?' AND id IN (?, ?)"
	if got := MySQL.Rebind(q); got != q {
		t.Fatalf("mysql should keep placeholders, got %q", got)
	}
	want := "SELECT id FROM users WHERE username = $1 AND name <> '?' AND id IN ($2, $3)"
	if got := Postgres.Rebind(q); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := Placeholders(3); got != "?, ?, ?" {
		t.Fatalf("got %q", got)
	}
	if got := Placeholders(0); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestDialectFor(t *testing.T) {
	if d, err := DialectFor("pgx"); err != nil || d != Postgres {
		t.Fatalf("pgx: %v %v", d, err)
	}
	if d, err := DialectFor("MySQL"); err != nil || d != MySQL {
		t.Fatalf("mysql: %v %v", d, err)
	}
	if _, err := DialectFor("sqlite"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestStatements(t *testing.T) {
	for _, d := range []Dialect{MySQL, Postgres} {
		stmts, err := Statements(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		tables := 0
		for _, s := range stmts {
			if strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS") {
				tables++
			}
		}
		if tables != 5 {
			t.Fatalf("%s: want 5 tables, got %d", d, tables)
		}
	}
}
