package database

import (
	"database/sql/driver"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/liveness"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind // 0 means unclassified
	}{
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, UniqueViolation},
		{"mysql fk child", &mysql.MySQLError{Number: 1452}, ForeignKeyViolation},
		{"mysql fk parent", &mysql.MySQLError{Number: 1451}, ForeignKeyViolation},
		{"mysql too many conns", &mysql.MySQLError{Number: 1040}, ConnectionError},
		{"mysql sqlstate 08", &mysql.MySQLError{Number: 9999, SQLState: [5]byte{'0', '8', 'S', '0', '1'}}, ConnectionError},
		{"mysql syntax", &mysql.MySQLError{Number: 1064}, 0},
		{"pg unique", &pgconn.PgError{Code: "23505"}, UniqueViolation},
		{"pg fk", &pgconn.PgError{Code: "23503"}, ForeignKeyViolation},
		{"pg connection exception", &pgconn.PgError{Code: "08000"}, ConnectionError},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, ConnectionError},
		{"pg check", &pgconn.PgError{Code: "23514"}, 0},
		{"invalid conn", mysql.ErrInvalidConn, ConnectionError},
		{"bad conn", driver.ErrBadConn, ConnectionError},
		{"wrapped duplicate", errors.Wrap(&mysql.MySQLError{Number: 1062}, "insert user"), UniqueViolation},
		{"plain", errors.New("boom"), 0},
		{"nil", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if tc.want == 0 {
				if got != nil {
					t.Fatalf("want unclassified, got %v", got.Kind)
				}
				return
			}
			if got == nil || got.Kind != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("cause not preserved")
			}
		})
	}
}

func TestKindString(t *testing.T) {
	want := map[Kind]string{
		UniqueViolation:     "unique_violation",
		ForeignKeyViolation: "foreign_key_violation",
		ConnectionError:     "connection_error",
	}
	for k, s := range want {
		if k.String() != s {
			t.Fatalf("%d: want %s, got %s", k, s, k.String())
		}
	}
}

func TestConnectionErrorMatchesConnectionLost(t *testing.T) {
	err := errors.Wrap(Classify(mysql.ErrInvalidConn), "find user")
	if !liveness.IsConnectionLost(err) {
		t.Fatal("connection error should match ErrConnectionLost")
	}
	if liveness.IsConnectionLost(Classify(&mysql.MySQLError{Number: 1062})) {
		t.Fatal("unique violation must not match ErrConnectionLost")
	}
	if !IsKind(err, ConnectionError) {
		t.Fatal("IsKind should see through wrapping")
	}
}
