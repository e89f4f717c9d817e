// Package reaper frees a TCP port by terminating whatever processes
// currently hold it, making server startup idempotent.
package reaper

import (
	"log/slog"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/toolhost/toolhost/internal/telemetry"
)

// Reaper scans OS connections and signals the holders of a port.
type Reaper struct {
	logger  *slog.Logger
	metrics *telemetry.MetricsCollector

	// connections and terminate are swappable for tests.
	connections func() ([]gnet.ConnectionStat, error)
	terminate   func(pid int32) error
}

// New creates a Reaper. logger and metrics may be nil.
func New(logger *slog.Logger, metrics *telemetry.MetricsCollector) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		logger:      logger,
		metrics:     metrics,
		connections: func() ([]gnet.ConnectionStat, error) { return gnet.Connections("tcp") },
		terminate:   terminate,
	}
}

func terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Terminate()
}

// Reap sends a termination signal to every process listening on port.
// Best-effort and irreversible: a holder that already exited or cannot
// be signaled is logged and skipped, never a hard error. Callers run
// this exactly once, before binding their own listener.
//
// Known race: another process may rebind the freed port before the
// caller claims it. The server narrows the window by retrying the
// bind, but cannot close it.
func (r *Reaper) Reap(port int) error {
	conns, err := r.connections()
	if err != nil {
		// Cannot even enumerate; startup proceeds and the bind will
		// surface any real conflict.
		r.logger.Warn("port reap skipped: cannot list connections", "port", port, "error", err)
		return nil
	}

	for _, conn := range conns {
		if conn.Laddr.Port != uint32(port) || conn.Status != "LISTEN" || conn.Pid <= 0 {
			continue
		}
		if err := r.terminate(conn.Pid); err != nil {
			r.logger.Warn("could not signal port holder",
				"port", port, "pid", conn.Pid, "error", err)
			if r.metrics != nil {
				r.metrics.IncrementCounter(telemetry.MetricReapFailures, 1)
			}
			continue
		}
		r.logger.Info("signaled process holding port", "port", port, "pid", conn.Pid)
		if r.metrics != nil {
			r.metrics.IncrementCounter(telemetry.MetricPortsReaped, 1)
		}
	}
	return nil
}
