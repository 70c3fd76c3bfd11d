package database

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/liveness"
	"github.com/iliyamo/anythought/internal/logging"
)

// StoreName labels relational connection failures.
const StoreName = "database"

// Config describes how to reach the relational store.  DSN is a secret and
// is never logged.
type Config struct {
	Driver       string // "mysql" or "pgx"
	DSN          string
	ProbeTimeout time.Duration
	Health       liveness.MonitorOptions
}

// DB owns the connection pool for one service instance.
type DB struct {
	pool    *sql.DB
	ex      *Executor
	monitor *liveness.Monitor
	log     logrus.FieldLogger
}

// Open connects to the relational store and verifies the connection within
// cfg.ProbeTimeout.  An unreachable store yields a ConnectionLostError and
// no pool is left open.
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*DB, error) {
	log = logging.Component(log, StoreName)
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}

	pool, endpoint, err := openPool(dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Pool settings
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(25)
	pool.SetConnMaxLifetime(30 * time.Minute)

	log = log.WithField("endpoint", endpoint)
	log.Info("connecting")
	if err := liveness.Probe(ctx, StoreName, pool.PingContext, cfg.ProbeTimeout); err != nil {
		_ = pool.Close()
		log.WithError(err).Error("liveness probe failed")
		return nil, err
	}
	log.Info("connected")

	db := &DB{pool: pool, ex: NewExecutor(pool, dialect, log), log: log}
	db.monitor = liveness.NewMonitor(StoreName, pool.PingContext, cfg.Health, log)
	db.ex.OnConnectionError(db.monitor.Nudge)
	return db, nil
}

// openPool builds the pool without connecting.  The returned endpoint is
// host:port only.
func openPool(d Dialect, dsn string) (*sql.DB, string, error) {
	switch d {
	case MySQL:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, "", errors.New("invalid mysql DSN")
		}
		// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
		mc.ParseTime = true
		mc.Loc = time.UTC
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, "", errors.Wrap(err, "mysql connector")
		}
		return sql.OpenDB(connector), mc.Addr, nil
	case Postgres:
		pc, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, "", errors.New("invalid postgres DSN")
		}
		return stdlib.OpenDB(*pc), net.JoinHostPort(pc.Host, strconv.Itoa(int(pc.Port))), nil
	}
	return nil, "", errors.Errorf("unsupported dialect %q", d)
}

// Executor returns the unit-of-work executor over this pool.
func (db *DB) Executor() *Executor { return db.ex }

// Ping checks one round trip.
func (db *DB) Ping(ctx context.Context) error { return db.pool.PingContext(ctx) }

// Watch monitors the connection until ctx is done (nil) or the store is
// lost (*liveness.ConnectionLostError).
func (db *DB) Watch(ctx context.Context) error { return db.monitor.Watch(ctx) }

// Close releases the pool.
func (db *DB) Close() error {
	db.log.Info("closing pool")
	return db.pool.Close()
}
