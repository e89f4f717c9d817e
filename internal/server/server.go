// Package server composes the catalog, dispatcher, reaper, and
// publisher into a running SSE listener for one service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/toolhost/toolhost/internal/announce"
	"github.com/toolhost/toolhost/internal/catalog"
	"github.com/toolhost/toolhost/internal/dispatch"
	"github.com/toolhost/toolhost/internal/errortypes"
	"github.com/toolhost/toolhost/internal/reaper"
	"github.com/toolhost/toolhost/internal/telemetry"
)

// Version reported to clients during the MCP handshake.
const Version = "0.3.0"

// The duplex channel's two conventional paths: clients hold a
// long-lived connection on PushPath and post messages to PostPath.
const (
	PushPath = "/sse"
	PostPath = "/message"
)

// Bind retry bounds after reaping an occupied port.
const (
	bindAttempts  = 5
	bindBaseDelay = 100 * time.Millisecond
)

// Options configures a Runner. Host, port, service name, and publish
// mode are construction parameters; the runner reads nothing from the
// ambient environment.
type Options struct {
	Service    string
	Host       string
	Port       int
	Catalog    *catalog.Catalog
	Dispatcher *dispatch.Dispatcher
	Reaper     *reaper.Reaper
	Publisher  *announce.Publisher
	// PublishMode selects how the endpoint is advertised; empty means
	// merge-write.
	PublishMode announce.Mode
	Logger      *slog.Logger
	Metrics     *telemetry.MetricsCollector
}

// Runner owns the serve loop for one service instance.
type Runner struct {
	opts    Options
	logger  *slog.Logger
	httpSrv *http.Server
}

// NewRunner creates a Runner and wires the dispatcher's two operations
// onto the duplex channel provider.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Catalog == nil || opts.Dispatcher == nil {
		return nil, errortypes.ConfigError(
			errors.New("catalog and dispatcher are required"), "cannot build server")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{opts: opts, logger: logger}
	r.httpSrv = &http.Server{Handler: r.buildHandler()}
	return r, nil
}

// EndpointURL returns the push-path URL advertised to clients.
func (r *Runner) EndpointURL() string {
	return fmt.Sprintf("http://%s:%d%s", r.opts.Host, r.opts.Port, PushPath)
}

// buildHandler registers every catalog tool on the MCP server and
// mounts the SSE transport's two handlers on the router.
func (r *Runner) buildHandler() http.Handler {
	mcpSrv := mcpserver.NewMCPServer(r.opts.Service, Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	for _, spec := range r.opts.Catalog.Specs() {
		name := spec.Name
		tool := mcp.NewToolWithRawSchema(spec.Name, spec.Description, spec.InputSchema)
		mcpSrv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text := r.opts.Dispatcher.CallTool(ctx, name, request.GetArguments())
			return mcp.NewToolResultText(text), nil
		})
	}

	sse := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithBaseURL(fmt.Sprintf("http://%s:%d", r.opts.Host, r.opts.Port)),
		mcpserver.WithSSEEndpoint(PushPath),
		mcpserver.WithMessageEndpoint(PostPath),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"service":%q,"tools":%d}`, r.opts.Service, r.opts.Catalog.Len())
	})
	router.Handle(PushPath, sse.SSEHandler())
	router.Handle(PostPath, sse.MessageHandler())

	return router
}

// bind claims the listener. The port was reaped before the first
// attempt; if it is still in use (the signaled holder has not exited
// yet, or something rebound it), reap again and retry with back-off,
// bounded.
func (r *Runner) bind() (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", r.opts.Host, r.opts.Port)
	delay := bindBaseDelay

	var lastErr error
	for attempt := 0; attempt < bindAttempts; attempt++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if !errors.Is(err, syscall.EADDRINUSE) {
			break
		}
		r.logger.Warn("port still in use, reaping and retrying",
			"addr", addr, "attempt", attempt+1, "error", err)
		if r.opts.Reaper != nil {
			_ = r.opts.Reaper.Reap(r.opts.Port)
		}
		time.Sleep(delay)
		delay *= 2
	}
	return nil, errortypes.NetworkError(lastErr, "cannot bind listener").
		WithField("addr", addr)
}

// Run reaps the port, publishes the endpoint, and serves until ctx is
// canceled or the listener fails.
func (r *Runner) Run(ctx context.Context) error {
	if r.opts.Reaper != nil {
		if err := r.opts.Reaper.Reap(r.opts.Port); err != nil {
			// Reap failures are never fatal.
			r.logger.Warn("port reap failed", "port", r.opts.Port, "error", err)
		}
	}

	if r.opts.Publisher != nil {
		mode := r.opts.PublishMode
		if mode == "" {
			mode = announce.ModeMergeWrite
		}
		if err := r.opts.Publisher.Publish(r.opts.Service, r.EndpointURL(), mode); err != nil {
			return err
		}
	}

	ln, err := r.bind()
	if err != nil {
		return err
	}

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordTimestamp(telemetry.MetricServerStarted)
	}
	r.logger.Info("serving tools",
		"service", r.opts.Service,
		"addr", ln.Addr().String(),
		"tools", r.opts.Catalog.Len(),
		"push_path", PushPath,
		"post_path", PostPath,
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- r.httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.httpSrv.Shutdown(shutdownCtx)
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errortypes.NetworkError(err, "serve loop failed")
	}
}

// Handle controls a background serve loop started by Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan error
}

// Err reports the serve loop's exit, nil on clean shutdown.
func (h *Handle) Err() <-chan error {
	return h.done
}

// Shutdown stops the serve loop and waits for it to exit.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the same serve loop as Run on its own goroutine and
// returns immediately. It does not parallelize request handling, it
// only unblocks the caller.
func (r *Runner) Start() *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan error, 1)}
	go func() {
		h.done <- r.Run(ctx)
		close(h.done)
	}()
	return h
}
