package database

import (
	"context"
	"embed"
	"strings"

	"github.com/pkg/errors"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Statements returns the schema statements for d in apply order.
func Statements(d Dialect) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + string(d) + ".sql")
	if err != nil {
		return nil, errors.Errorf("no schema for dialect %q", d)
	}
	var out []string
	for _, stmt := range strings.Split(string(raw), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Migrate applies the schema.  Every statement is idempotent, so running it
// against an up-to-date database is a no-op.
func Migrate(ctx context.Context, ex *Executor) error {
	stmts, err := Statements(ex.Dialect())
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		err := ex.Execute(ctx, func(q DBTX) error {
			_, err := q.ExecContext(ctx, stmt)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "apply schema statement %d", i+1)
		}
	}
	return nil
}
