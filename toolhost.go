// Package toolhost serves one service's tool catalog to remote
// clients over an SSE duplex channel. The catalog is built at startup
// by joining the service's compiled-in handler registry with its JSON
// schema document; per-call failures are isolated into normal RPC
// responses.
package toolhost

import (
	"context"
	"log/slog"

	"github.com/toolhost/toolhost/internal/announce"
	"github.com/toolhost/toolhost/internal/catalog"
	"github.com/toolhost/toolhost/internal/config"
	"github.com/toolhost/toolhost/internal/dispatch"
	"github.com/toolhost/toolhost/internal/errortypes"
	"github.com/toolhost/toolhost/internal/handler"
	"github.com/toolhost/toolhost/internal/portmap"
	"github.com/toolhost/toolhost/internal/reaper"
	"github.com/toolhost/toolhost/internal/server"
	"github.com/toolhost/toolhost/internal/telemetry"
)

// Config represents the configuration for the toolhost service.
type Config = config.Config

// NewConfig returns a Config populated with default values.
func NewConfig() *Config {
	return config.NewConfig()
}

// PublishMode selects how the endpoint is advertised at startup.
type PublishMode = announce.Mode

// Publish modes
const (
	// PublishMergeWrite merges the endpoint into the client config
	// document on disk.
	PublishMergeWrite = announce.ModeMergeWrite

	// PublishPrint prints the would-be entry to the operator and
	// leaves the document untouched.
	PublishPrint = announce.ModePrint
)

// Server represents one service's running tool server.
type Server struct {
	config     *config.Config
	service    string
	port       int
	registry   *handler.Registry
	catalog    *catalog.Catalog
	dispatcher *dispatch.Dispatcher
	publisher  *announce.Publisher
	runner     *server.Runner
	metrics    *telemetry.MetricsCollector
	logger     *slog.Logger
}

// ServerOptions defines the options for creating a new Server.
type ServerOptions struct {
	Config     *Config           // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string            // Path to config file. Used if Config is nil. If both are empty, defaults apply.
	Service    string            // Name of the service to serve. Required.
	Registry   *handler.Registry // Handler registry. If nil, the compiled-in service index is consulted.
	Mode       PublishMode       // Endpoint publish mode. Empty means PublishMergeWrite.
	Logger     *slog.Logger      // External logger. If nil, slog.Default() is used.
}

// NewServer builds one service's server: resolves its port from the
// discoverable set, loads and validates the catalog, and wires the
// dispatcher. Everything diagnosable here is returned as a fatal
// configuration error, before any port is reaped or bound.
func NewServer(opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg *Config
	var err error
	switch {
	case opts.Config != nil:
		cfg = opts.Config
	case opts.ConfigPath != "":
		cfg, err = config.LoadConfigWithPath(opts.ConfigPath)
		if err != nil {
			return nil, errortypes.ConfigError(err, "failed to load configuration from "+opts.ConfigPath)
		}
	default:
		cfg, err = config.LoadConfig()
		if err != nil {
			return nil, errortypes.ConfigError(err, "failed to load configuration")
		}
	}

	registry := opts.Registry
	if registry == nil {
		registry, err = handler.LookupService(opts.Service)
		if err != nil {
			return nil, err
		}
	}

	assignment, err := portmap.New(cfg.Services.Root, cfg.Services.BasePort)
	if err != nil {
		return nil, err
	}
	port, err := assignment.Port(opts.Service)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(opts.Service, registry.HandlerMap(), cfg.SchemaPath(opts.Service))
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetricsCollector()
	dispatcher := dispatch.New(cat, registry, logger, metrics)
	publisher := announce.New(cfg.Announce.ClientConfigPath, logger)

	runner, err := server.NewRunner(server.Options{
		Service:     opts.Service,
		Host:        cfg.Server.Host,
		Port:        port,
		Catalog:     cat,
		Dispatcher:  dispatcher,
		Reaper:      reaper.New(logger, metrics),
		Publisher:   publisher,
		PublishMode: opts.Mode,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("toolhost server initialized",
		"service", opts.Service, "port", port, "tools", cat.Len())

	return &Server{
		config:     cfg,
		service:    opts.Service,
		port:       port,
		registry:   registry,
		catalog:    cat,
		dispatcher: dispatcher,
		publisher:  publisher,
		runner:     runner,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Run serves in the foreground, blocking until ctx is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// Start serves in the background and returns a handle immediately.
func (s *Server) Start() *server.Handle {
	return s.runner.Start()
}

// Port returns the port assigned to this service.
func (s *Server) Port() int {
	return s.port
}

// EndpointURL returns the push-path URL advertised to clients.
func (s *Server) EndpointURL() string {
	return s.runner.EndpointURL()
}

// Dispatcher exposes the RPC operations for in-process callers.
func (s *Server) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Catalog returns the loaded, validated catalog.
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// Metrics returns the server's metrics collector.
func (s *Server) Metrics() *telemetry.MetricsCollector {
	return s.metrics
}

// PrintClientConfig emits the service's would-be client-config entry
// without touching the document.
func (s *Server) PrintClientConfig() error {
	return s.publisher.Publish(s.service, s.EndpointURL(), announce.ModePrint)
}
