package database

import (
	"context"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

const insertNote = "INSERT INTO notes (id) VALUES (?)"

func newMockExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewExecutor(db, MySQL, nil), mock
}

func insertNoteCommand(ex *Executor) Command[string] {
	return MakeCommand(ex, func(ctx context.Context, execute ExecuteFunc, id string) error {
		return execute(ctx, func(q DBTX) error {
			_, err := q.ExecContext(ctx, insertNote, id)
			return err
		})
	})
}

func TestExecuteClassifiesDriverErrors(t *testing.T) {
	ex, mock := newMockExecutor(t)
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnError(&mysql.MySQLError{Number: 1062})

	err := insertNoteCommand(ex)(context.Background(), "a")
	if !IsKind(err, UniqueViolation) {
		t.Fatalf("want unique violation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestExecutePassesThroughUnclassified(t *testing.T) {
	ex, mock := newMockExecutor(t)
	boom := errors.New("boom")
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnError(boom)

	err := insertNoteCommand(ex)(context.Background(), "a")
	if err != boom {
		t.Fatalf("want the original error, got %v", err)
	}
}

func TestConnectionErrorRunsHook(t *testing.T) {
	ex, mock := newMockExecutor(t)
	var nudges atomic.Int32
	ex.OnConnectionError(func() { nudges.Add(1) })
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnError(mysql.ErrInvalidConn)

	err := insertNoteCommand(ex)(context.Background(), "a")
	if !IsKind(err, ConnectionError) {
		t.Fatalf("want connection error, got %v", err)
	}
	if nudges.Load() != 1 {
		t.Fatalf("want 1 hook call, got %d", nudges.Load())
	}
}

func TestQueryOutsideTransactionAutoCommits(t *testing.T) {
	ex, mock := newMockExecutor(t)
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := insertNoteCommand(ex)(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionCommits(t *testing.T) {
	ex, mock := newMockExecutor(t)
	insert := insertNoteCommand(ex)
	mock.ExpectBegin()
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNote).WithArgs("b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ex.Transaction(context.Background(), func(ctx context.Context) error {
		if !InTransaction(ctx) {
			t.Fatal("ctx should carry the transaction")
		}
		if err := insert(ctx, "a"); err != nil {
			return err
		}
		return insert(ctx, "b")
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	ex, mock := newMockExecutor(t)
	insert := insertNoteCommand(ex)
	mock.ExpectBegin()
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectRollback()

	err := ex.Transaction(context.Background(), func(ctx context.Context) error {
		if err := insert(ctx, "a"); err != nil {
			return err
		}
		return insert(ctx, "a")
	})
	if !IsKind(err, UniqueViolation) {
		t.Fatalf("want unique violation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	ex, mock := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	func() {
		defer func() {
			if p := recover(); p != "kaboom" {
				t.Fatalf("want re-panic, got %v", p)
			}
		}()
		_ = ex.Transaction(context.Background(), func(context.Context) error {
			panic("kaboom")
		})
	}()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	ex, mock := newMockExecutor(t)
	insert := insertNoteCommand(ex)
	mock.ExpectBegin()
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNote).WithArgs("b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ex.Transaction(context.Background(), func(ctx context.Context) error {
		if err := insert(ctx, "a"); err != nil {
			return err
		}
		return ex.Transaction(ctx, func(ctx context.Context) error {
			return insert(ctx, "b")
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionContextDoesNotLeak(t *testing.T) {
	ex, mock := newMockExecutor(t)
	insert := insertNoteCommand(ex)
	mock.ExpectBegin()
	mock.ExpectCommit()

	parent := context.Background()
	var leaked context.Context
	err := ex.Transaction(parent, func(ctx context.Context) error {
		leaked = ctx
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if InTransaction(parent) {
		t.Fatal("parent chain must not see the transaction")
	}
	if err := insert(leaked, "late"); !errors.Is(err, ErrTxDone) {
		t.Fatalf("want ErrTxDone after commit, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionSerializesConcurrentStatements(t *testing.T) {
	ex, mock := newMockExecutor(t)
	mock.MatchExpectationsInOrder(false)
	const n = 8
	mock.ExpectBegin()
	for i := 0; i < n; i++ {
		mock.ExpectExec(insertNote).WithArgs(strconv.Itoa(i)).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	var inflight, peak atomic.Int32
	insert := MakeCommand(ex, func(ctx context.Context, execute ExecuteFunc, id string) error {
		return execute(ctx, func(q DBTX) error {
			cur := inflight.Add(1)
			defer inflight.Add(-1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			_, err := q.ExecContext(ctx, insertNote, id)
			return err
		})
	})

	err := ex.Transaction(context.Background(), func(ctx context.Context) error {
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				errs <- insert(ctx, id)
			}(strconv.Itoa(i))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p != 1 {
		t.Fatalf("statements overlapped inside the transaction: peak %d", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentTransactionsDoNotShareContext(t *testing.T) {
	ex, mock := newMockExecutor(t)
	mock.MatchExpectationsInOrder(false)
	insert := insertNoteCommand(ex)
	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectExec(insertNote).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNote).WithArgs("b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectCommit()

	parent := context.Background()
	started := make(chan *txContext)
	release := make(chan struct{})
	other := make(chan error, 1)

	go func() {
		first := <-started
		if InTransaction(parent) {
			t.Error("other chain must not see the open transaction")
		}
		other <- ex.Transaction(parent, func(ctx context.Context) error {
			if txFrom(ctx) == first {
				t.Error("second transaction joined the first")
			}
			return insert(ctx, "b")
		})
		close(release)
	}()

	err := ex.Transaction(parent, func(ctx context.Context) error {
		if err := insert(ctx, "a"); err != nil {
			return err
		}
		started <- txFrom(ctx)
		select {
		case <-release:
		case <-time.After(3 * time.Second):
			return errors.New("second transaction did not finish while the first was open")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := <-other; err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBeginFailureIsClassified(t *testing.T) {
	ex, mock := newMockExecutor(t)
	mock.ExpectBegin().WillReturnError(mysql.ErrInvalidConn)

	err := ex.Transaction(context.Background(), func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	if !IsKind(err, ConnectionError) {
		t.Fatalf("want connection error, got %v", err)
	}
}

func TestPostgresExecutorRebinds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ex := NewExecutor(db, Postgres, nil)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notes (id) VALUES ($1)")).WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := insertNoteCommand(ex)(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMigrateAppliesEveryStatement(t *testing.T) {
	ex, mock := newMockExecutor(t)
	stmts, err := Statements(MySQL)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range stmts {
		mock.ExpectExec(s).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := Migrate(context.Background(), ex); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
