package database

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/logging"
	"github.com/iliyamo/anythought/internal/tracing"
)

// DBTX is what a statement runs against: the pool or an open transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecuteFunc runs fn against whichever DBTX the current call chain is bound to.
type ExecuteFunc func(ctx context.Context, fn func(DBTX) error) error

// Query is a repository operation that works in or out of a transaction.
type Query[In, Out any] func(ctx context.Context, in In) (Out, error)

// Command is a Query without a result.
type Command[In any] func(ctx context.Context, in In) error

// ErrTxDone is returned when a statement uses a transaction context after
// its transaction has been committed or rolled back.
var ErrTxDone = errors.New("transaction already finished")

// Executor is the only way statements reach the pool.
type Executor struct {
	db      *sql.DB
	dialect Dialect
	log     logrus.FieldLogger

	mu          sync.RWMutex
	onConnError func()
}

func NewExecutor(db *sql.DB, dialect Dialect, log logrus.FieldLogger) *Executor {
	return &Executor{db: db, dialect: dialect, log: logging.Component(log, "executor")}
}

// Dialect reports the executor's SQL dialect.
func (e *Executor) Dialect() Dialect { return e.dialect }

// OnConnectionError registers a hook run whenever a statement fails with a
// connection error.
func (e *Executor) OnConnectionError(fn func()) {
	e.mu.Lock()
	e.onConnError = fn
	e.mu.Unlock()
}

// Execute runs fn against the pool.  Driver failures come back classified;
// everything else is returned as is.
func (e *Executor) Execute(ctx context.Context, fn func(DBTX) error) error {
	return e.classify(fn(rebinder{q: e.db, d: e.dialect}))
}

// Transaction runs fn in one transaction, committing when fn returns nil
// and rolling back on error or panic.  The ctx handed to fn carries the
// transaction, so queries built with MakeQuery join it.  A Transaction
// started inside another on the same chain joins the outer one.
func (e *Executor) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if tc := txFrom(ctx); tc != nil && tc.owner == e {
		return fn(ctx)
	}

	ctx, span := tracing.Start(ctx, "db.transaction")
	defer func() { tracing.End(span, err) }()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(e.classify(err), "begin transaction")
	}
	tc := &txContext{owner: e, tx: tx}

	defer func() {
		if p := recover(); p != nil {
			tc.finish()
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				e.log.WithError(rbErr).Error("rollback after panic failed")
			}
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tc)); err != nil {
		tc.finish()
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}

	tc.finish()
	if err = tx.Commit(); err != nil {
		return errors.Wrap(e.classify(err), "commit transaction")
	}
	return nil
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	return txFrom(ctx) != nil
}

// executeFor returns the ExecuteFunc bound to ctx's chain: the ambient
// transaction when there is one, the pool otherwise.
func (e *Executor) executeFor(ctx context.Context) ExecuteFunc {
	if tc := txFrom(ctx); tc != nil && tc.owner == e {
		return tc.execute
	}
	return e.Execute
}

// MakeQuery binds q to ex.  At call time the query runs inside the ambient
// transaction if ctx has one, otherwise as a single auto-committed unit.
func MakeQuery[In, Out any](ex *Executor, q func(ctx context.Context, execute ExecuteFunc, in In) (Out, error)) Query[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		return q(ctx, ex.executeFor(ctx), in)
	}
}

// MakeCommand is MakeQuery for statements with no result.
func MakeCommand[In any](ex *Executor, q func(ctx context.Context, execute ExecuteFunc, in In) error) Command[In] {
	return func(ctx context.Context, in In) error {
		return q(ctx, ex.executeFor(ctx), in)
	}
}

func (e *Executor) classify(err error) error {
	if err == nil {
		return nil
	}
	de := Classify(err)
	if de == nil {
		return err
	}
	if de.Kind == ConnectionError {
		e.mu.RLock()
		hook := e.onConnError
		e.mu.RUnlock()
		if hook != nil {
			hook()
		}
	}
	return de
}

type txKey struct{}

// txContext is the handle of one open transaction.  Statements issued
// through it are serialized, and finish waits for the one in flight.
type txContext struct {
	owner *Executor
	tx    *sql.Tx

	mu   sync.Mutex
	done bool
}

func txFrom(ctx context.Context) *txContext {
	tc, _ := ctx.Value(txKey{}).(*txContext)
	return tc
}

func (tc *txContext) execute(_ context.Context, fn func(DBTX) error) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.done {
		return ErrTxDone
	}
	return tc.owner.classify(fn(rebinder{q: tc.tx, d: tc.owner.dialect}))
}

func (tc *txContext) finish() {
	tc.mu.Lock()
	tc.done = true
	tc.mu.Unlock()
}

// rebinder rewrites placeholders before handing statements to q.
type rebinder struct {
	q DBTX
	d Dialect
}

func (r rebinder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.d.Rebind(query), args...)
}

func (r rebinder) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.d.Rebind(query), args...)
}

func (r rebinder) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.d.Rebind(query), args...)
}
