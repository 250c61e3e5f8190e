package db

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// Table names a results table, optionally schema-qualified. An empty
// Schema resolves through the search path.
type Table struct {
	Schema string
	Name   string
}

// ParseTable splits "schema.name" at the first dot.
func ParseTable(s string) Table {
	if schema, name, ok := strings.Cut(s, "."); ok {
		return Table{Schema: schema, Name: name}
	}
	return Table{Name: s}
}

// Ident returns the identifier used for COPY and quoting.
func (t Table) Ident() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

// Quoted is the SQL-safe form of the table name.
func (t Table) Quoted() string { return t.Ident().Sanitize() }

func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// stage is the session-local table a merge loads into before it touches t.
func (t Table) stage() Table {
	return Table{Name: "stage_" + t.Name}
}

func columnList(cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
	}
	return b.String()
}
