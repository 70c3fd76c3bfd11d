package repository

import (
	"context"
	"time"

	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/tracing"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type queryFunc[In, Out any] func(ctx context.Context, execute database.ExecuteFunc, in In) (Out, error)

type commandFunc[In any] func(ctx context.Context, execute database.ExecuteFunc, in In) error

// traced wraps q in a span named after the repository operation.
func traced[In, Out any](name string, q queryFunc[In, Out]) queryFunc[In, Out] {
	return func(ctx context.Context, execute database.ExecuteFunc, in In) (out Out, err error) {
		ctx, span := tracing.Start(ctx, name)
		defer func() { tracing.End(span, err) }()
		return q(ctx, execute, in)
	}
}

func tracedCmd[In any](name string, q commandFunc[In]) commandFunc[In] {
	return func(ctx context.Context, execute database.ExecuteFunc, in In) (err error) {
		ctx, span := tracing.Start(ctx, name)
		defer func() { tracing.End(span, err) }()
		return q(ctx, execute, in)
	}
}

// stamp normalises a creation time: UTC, millisecond precision, now if unset.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}
