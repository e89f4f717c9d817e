// Package dispatch implements the two RPC operations of the server,
// list_tools and call_tool, against a loaded catalog and handler
// registry.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/toolhost/toolhost/internal/catalog"
	"github.com/toolhost/toolhost/internal/errortypes"
	"github.com/toolhost/toolhost/internal/handler"
	"github.com/toolhost/toolhost/internal/telemetry"
)

// ErrorPayload is the normalized shape substituted for an error
// propagating out of a tool call. It travels inside a normal response
// block, never as a transport failure.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToolListing is the externally visible shape of one catalog entry,
// as returned by list_tools.
type ToolListing struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Dispatcher holds the per-process call state: the immutable catalog
// and registry. No state persists across calls beyond these, so a
// failed call cannot corrupt the next one.
type Dispatcher struct {
	catalog  *catalog.Catalog
	registry *handler.Registry
	logger   *slog.Logger
	metrics  *telemetry.MetricsCollector
}

// New creates a Dispatcher. logger and metrics may be nil.
func New(cat *catalog.Catalog, reg *handler.Registry, logger *slog.Logger, metrics *telemetry.MetricsCollector) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{catalog: cat, registry: reg, logger: logger, metrics: metrics}
}

// ListTools returns the external shape of every catalog entry, in
// document order. Shape correctness was validated at load time, so
// this cannot fail under normal operation.
func (d *Dispatcher) ListTools() []ToolListing {
	if d.metrics != nil {
		d.metrics.IncrementCounter(telemetry.MetricListTools, 1)
	}

	specs := d.catalog.Specs()
	listings := make([]ToolListing, len(specs))
	for i, spec := range specs {
		listings[i] = ToolListing{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		}
	}
	return listings
}

// CallTool invokes the named tool with args and returns the text of
// the call's single content block. Errors anywhere in the call are
// converted into a serialized ErrorPayload in that block; CallTool
// itself never fails.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) string {
	started := time.Now()
	if d.metrics != nil {
		d.metrics.IncrementCounter(telemetry.MetricCallsTotal, 1)
		d.metrics.RecordTimestamp(telemetry.MetricLastCall)
	}

	spec, ok := d.catalog.Lookup(name)
	if !ok {
		// Unknown tool: no resolution attempted.
		return d.fail(name, args, errortypes.UnknownToolError(
			fmt.Errorf("tool %q is not in the catalog", name),
			"unknown tool"))
	}

	h, err := d.registry.Resolve(spec.HandlerRef)
	if err != nil {
		return d.fail(name, args, err)
	}

	result, err := invoke(ctx, h, args)
	if err != nil {
		return d.fail(name, args, err)
	}

	text, err := renderResult(result)
	if err != nil {
		return d.fail(name, args, err)
	}

	if d.metrics != nil {
		d.metrics.IncrementCounter(telemetry.MetricCallsSuccess, 1)
		d.metrics.RecordTimer(telemetry.CallDurationMetric(name), time.Since(started))
	}
	return text
}

// invoke runs the handler, converting a panic into a handler-execution
// error so one bad call can never take down the server.
func invoke(ctx context.Context, h handler.Handler, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errortypes.ExecutionError(fmt.Errorf("handler panicked: %v", r), "handler execution failed")
		}
	}()
	return h.Invoke(ctx, args)
}

// renderResult serializes a handler's return value to one canonical
// text block: strings pass through verbatim, everything else is JSON
// encoded. json.Marshal sorts map keys, so equal logical values give
// byte-identical blocks regardless of which handler kind produced
// them.
func renderResult(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", errortypes.ExecutionError(err, "cannot serialize handler result")
	}
	return string(encoded), nil
}

// fail logs the failed call and renders its error payload. The
// original error kind and message are preserved for observability.
func (d *Dispatcher) fail(name string, args map[string]any, err error) string {
	kind := errortypes.Classify(err)
	d.logger.Error("tool call failed",
		"tool", name, "arguments", args, "kind", string(kind), "error", err)

	if d.metrics != nil {
		d.metrics.IncrementCounter(telemetry.MetricCallsFailure, 1)
		switch kind {
		case errortypes.ErrorTypeUnknownTool:
			d.metrics.IncrementCounter(telemetry.MetricUnknownTool, 1)
		case errortypes.ErrorTypeResolution:
			d.metrics.IncrementCounter(telemetry.MetricResolutionFailure, 1)
		default:
			d.metrics.IncrementCounter(telemetry.MetricExecutionFailure, 1)
		}
	}

	payload := ErrorPayload{Kind: string(kind), Message: err.Error()}
	encoded, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		// Unreachable for this shape; keep the call answerable anyway.
		return fmt.Sprintf(`{"kind":"internal","message":%q}`, marshalErr.Error())
	}
	return string(encoded)
}
