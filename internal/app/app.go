// Package app is the composition root.  Run wires one service instance:
// stores first, then repositories, services and the HTTP server.  Every
// store opened by Run is closed before it returns.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/anythought/internal/config"
	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/handler"
	"github.com/iliyamo/anythought/internal/kvstore"
	"github.com/iliyamo/anythought/internal/liveness"
	"github.com/iliyamo/anythought/internal/middleware"
	"github.com/iliyamo/anythought/internal/queue"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/router"
	"github.com/iliyamo/anythought/internal/service"
	"github.com/iliyamo/anythought/internal/tracing"
)

const (
	serviceName     = "anythought"
	shutdownTimeout = 10 * time.Second
)

// Run serves until ctx is done or a backing store is lost.  A lost store
// is reported as an error matching liveness.ErrConnectionLost.
func Run(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.WithError(err).Warn("flush traces")
		}
	}()

	db, err := database.Open(ctx, databaseConfig(cfg), log)
	if err != nil {
		return err
	}
	defer closeStore(log, database.StoreName, db.Close)

	redisOpts, err := config.RedisOptions()
	if err != nil {
		return err
	}
	kv, err := kvstore.Open(ctx, kvstore.Config{
		Options:      redisOpts,
		ProbeTimeout: cfg.RedisProbeTimeout,
		Health:       healthOptions(cfg),
	}, log)
	if err != nil {
		return err
	}
	defer closeStore(log, kvstore.StoreName, kv.Close)

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.AMQPURL != "" {
		events = service.NewAMQPPublisher(cfg.AMQPURL, log)
	}

	ex := db.Executor()
	users := repository.NewUserRepo(ex)
	friends := repository.NewFriendRepo(ex)
	requests := repository.NewFriendRequestRepo(ex)
	posts := repository.NewPostRepo(ex)
	assets := repository.NewAssetRepo(ex)
	sessions := repository.NewSessionStore(kv, cfg.SessionTTL)

	auth := service.NewAuthService(users, sessions, events, cfg.SessionRefreshWindow, log)
	secure := cfg.Env == "prod"

	e := newServer(log)
	session := middleware.SessionAuth(auth)
	router.RegisterRoutes(e, handler.NewHealthHandler(db, kv))
	router.RegisterAuth(e, handler.NewAuthHandler(auth, secure), session,
		middleware.NewTokenBucket(cfg.RateLimit, kv.Redis(), log))
	router.RegisterSocial(e, router.SocialHandlers{
		Users:   handler.NewUserHandler(service.NewUserService(ex, users), auth, secure),
		Friends: handler.NewFriendHandler(service.NewFriendService(ex, friends, requests, events, log)),
		Posts:   handler.NewPostHandler(service.NewPostService(ex, posts, assets, friends, events, log)),
		Assets:  handler.NewAssetHandler(service.NewAssetService(ex, assets, cfg.AssetCDNBase)),
	}, session)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	g.Go(func() error { return db.Watch(gctx) })
	g.Go(func() error { return kv.Watch(gctx) })
	if cfg.AMQPURL != "" {
		g.Go(func() error { return queue.NewConsumer(cfg.AMQPURL, log).Run(gctx) })
	}
	return g.Wait()
}

// Migrate applies the schema to the configured relational store.
func Migrate(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	db, err := database.Open(ctx, databaseConfig(cfg), log)
	if err != nil {
		return err
	}
	defer closeStore(log, database.StoreName, db.Close)

	if err := database.Migrate(ctx, db.Executor()); err != nil {
		return err
	}
	log.Info("schema applied")
	return nil
}

func newServer(log logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(log))
	return e
}

func databaseConfig(cfg config.Config) database.Config {
	return database.Config{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		ProbeTimeout: cfg.DBProbeTimeout,
		Health:       healthOptions(cfg),
	}
}

func healthOptions(cfg config.Config) liveness.MonitorOptions {
	return liveness.MonitorOptions{Interval: cfg.HealthInterval, Failures: cfg.HealthFailures}
}

func closeStore(log logrus.FieldLogger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.WithError(err).WithField("store", name).Warn("close")
	}
}
