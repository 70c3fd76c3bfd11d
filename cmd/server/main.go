package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/anythought/internal/app"
	"github.com/iliyamo/anythought/internal/config"
	"github.com/iliyamo/anythought/internal/logging"
	"github.com/iliyamo/anythought/internal/supervisor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, restarting it when a backing store drops",
		RunE:  withConfig(serve),
	}
	root := &cobra.Command{
		Use:           "anythought",
		Short:         "anythought social API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	root.AddCommand(serveCmd, &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE:  withConfig(app.Migrate),
	})
	return root
}

// withConfig loads configuration and the logger before running fn.  Fatal
// errors are logged here so every command exits the same way.
func withConfig(fn func(context.Context, config.Config, logrus.FieldLogger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			logrus.WithError(err).Error("invalid configuration")
			return err
		}
		log := logging.New(cfg.LogLevel, cfg.LogFormat)
		log.WithField("env", cfg.Env).Infof("starting %s", cmd.Name())
		if err := fn(cmd.Context(), cfg, log); err != nil {
			log.WithError(err).Error("terminated")
			return err
		}
		log.Info("shut down")
		return nil
	}
}

func serve(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	sup := supervisor.New(supervisor.Backoff{
		Initial: cfg.SupervisorInitialDelay,
		Max:     cfg.SupervisorMaxDelay,
		Factor:  2,
		Jitter:  supervisor.DefaultBackoff().Jitter,
	}, log)
	return sup.Run(ctx, func(ctx context.Context) error { return app.Run(ctx, cfg, log) })
}
