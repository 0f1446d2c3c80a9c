package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/logger"
	"leadflow/pkg/logging"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailer-service",
		Short: "Mailer Service for the lead pipeline",
		Long:  "Mailer Service consumes email events and delivers them over SMTP",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (falls back to CONFIG_FILE, then defaults and environment)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the mailer-service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}
			if configFile == "" {
				earlyLog.Info("No config file given, using defaults and environment")
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Fatal("Failed to load config: %v", err)
			}

			log, err := logger.New(cfg.Logging.Level, constants.ServiceMailer)
			if err != nil {
				earlyLog.Fatal("Failed to init logger: %v", err)
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceMailer)

			log.InfowCtx(ctx, "Starting service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalw("Failed to initialize application", "error", err)
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}
