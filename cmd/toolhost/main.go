package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/toolhost/toolhost"
	"github.com/toolhost/toolhost/internal/config"
	"github.com/toolhost/toolhost/internal/errortypes"
	"github.com/toolhost/toolhost/internal/logger"

	// Compiled-in services register themselves here.
	_ "github.com/toolhost/toolhost/services/clock"
)

var (
	flagConfigPath  string
	flagHost        string
	flagBackground  bool
	flagPrintConfig bool
)

func main() {
	appLogger := setupLogging()

	rootCmd := &cobra.Command{
		Use:           "toolhost",
		Short:         "Serve one service's tool catalog over an SSE duplex channel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to the config file")

	serveCmd := &cobra.Command{
		Use:   "serve <service>",
		Short: "Start the tool server for one service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args[0], appLogger)
		},
	}
	serveCmd.Flags().StringVar(&flagHost, "host", "", "listener host, overrides the config file")
	serveCmd.Flags().BoolVar(&flagBackground, "background", false, "return after starting the serve loop")
	serveCmd.Flags().BoolVar(&flagPrintConfig, "print-config", false,
		"print the client config entry instead of writing the document")

	schemaGenCmd := &cobra.Command{
		Use:   "schema-gen <service>",
		Short: "Emit a skeleton tool schema document from a service's handler map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaGen(args[0], appLogger)
		},
	}

	rootCmd.AddCommand(serveCmd, schemaGenCmd)

	if err := rootCmd.Execute(); err != nil {
		errortypes.LogError(nil, err)
		appLogger.Fatal("toolhost failed: %v", err)
	}
}

// setupLogging configures and returns the application logger
func setupLogging() *logger.Logger {
	cfg := logger.DefaultConfig()

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		cfg.Level = logger.ParseLevel(levelStr)
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		cfg.Format = logger.JSON
	}

	appLogger := logger.New(cfg)
	logger.SetDefaultLogger(appLogger)
	return appLogger
}

func loadConfig() (*config.Config, error) {
	if flagConfigPath != "" {
		return config.LoadConfigWithPath(flagConfigPath)
	}
	return config.LoadConfig()
}

func runServe(service string, appLogger *logger.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return errortypes.ConfigError(err, "failed to load configuration")
	}
	if flagHost != "" {
		cfg.Server.Host = flagHost
	}

	mode := toolhost.PublishMergeWrite
	if flagPrintConfig {
		mode = toolhost.PublishPrint
	}

	srv, err := toolhost.NewServer(toolhost.ServerOptions{
		Config:  cfg,
		Service: service,
		Mode:    mode,
	})
	if err != nil {
		return err
	}

	appLogger.Info("serving %s on %s", service, srv.EndpointURL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagBackground {
		handle := srv.Start()
		select {
		case err := <-handle.Err():
			return err
		case <-ctx.Done():
			return handle.Shutdown(context.Background())
		}
	}
	return srv.Run(ctx)
}
