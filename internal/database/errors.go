package database

import (
	"database/sql/driver"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/liveness"
)

// Kind is the closed set of driver failures repositories can branch on.
type Kind int

const (
	UniqueViolation Kind = iota + 1
	ForeignKeyViolation
	ConnectionError
)

func (k Kind) String() string {
	switch k {
	case UniqueViolation:
		return "unique_violation"
	case ForeignKeyViolation:
		return "foreign_key_violation"
	case ConnectionError:
		return "connection_error"
	default:
		return "unknown"
	}
}

// Error is a classified driver failure.  A connection error also matches
// liveness.ErrConnectionLost so callers can treat both stores alike.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Cause.Error() }

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	return e.Kind == ConnectionError && target == liveness.ErrConnectionLost
}

// IsKind reports whether err carries a classified failure of kind k.
func IsKind(err error, k Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == k
}

// MySQL server error numbers.
const (
	mysqlDupEntry          = 1062
	mysqlRowIsReferenced   = 1451
	mysqlNoReferencedRow   = 1452
	mysqlTooManyConns      = 1040
	mysqlServerShutdown    = 1053
	mysqlNormalShutdown    = 1077
	mysqlAbortingConn      = 1152
	mysqlNewAbortingConn   = 1184
	mysqlConnCountError    = 1158
	mysqlNetReadInterrupt  = 1159
	mysqlNetWriteInterrupt = 1161
)

// Classify maps a relational driver failure to a Kind.  It returns nil for
// anything it does not recognise; such errors must be propagated unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDupEntry:
			return &Error{Kind: UniqueViolation, Cause: err}
		case mysqlRowIsReferenced, mysqlNoReferencedRow:
			return &Error{Kind: ForeignKeyViolation, Cause: err}
		case mysqlTooManyConns, mysqlServerShutdown, mysqlNormalShutdown, mysqlAbortingConn,
			mysqlNewAbortingConn, mysqlConnCountError, mysqlNetReadInterrupt, mysqlNetWriteInterrupt:
			return &Error{Kind: ConnectionError, Cause: err}
		}
		if me.SQLState[0] == '0' && me.SQLState[1] == '8' {
			return &Error{Kind: ConnectionError, Cause: err}
		}
		return nil
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch {
		case pe.Code == "23505":
			return &Error{Kind: UniqueViolation, Cause: err}
		case pe.Code == "23503":
			return &Error{Kind: ForeignKeyViolation, Cause: err}
		case strings.HasPrefix(pe.Code, "08"):
			return &Error{Kind: ConnectionError, Cause: err}
		}
		return nil
	}

	var ce *pgconn.ConnectError
	if errors.As(err, &ce) {
		return &Error{Kind: ConnectionError, Cause: err}
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return &Error{Kind: ConnectionError, Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return &Error{Kind: ConnectionError, Cause: err}
	}
	return nil
}
