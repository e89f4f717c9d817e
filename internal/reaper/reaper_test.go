package reaper

import (
	"errors"
	"testing"

	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/toolhost/toolhost/internal/telemetry"
)

func listener(port uint32, pid int32) gnet.ConnectionStat {
	return gnet.ConnectionStat{
		Status: "LISTEN",
		Laddr:  gnet.Addr{IP: "127.0.0.1", Port: port},
		Pid:    pid,
	}
}

// TestReapSignalsHolders verifies every listener on the port is signaled
func TestReapSignalsHolders(t *testing.T) {
	metrics := telemetry.NewMetricsCollector()
	r := New(nil, metrics)

	r.connections = func() ([]gnet.ConnectionStat, error) {
		return []gnet.ConnectionStat{
			listener(8100, 101),
			listener(8100, 102),
			listener(8200, 103), // other port, left alone
			{Status: "ESTABLISHED", Laddr: gnet.Addr{Port: 8100}, Pid: 104}, // not a listener
			listener(8100, 0), // kernel-owned, no pid
		}, nil
	}

	var signaled []int32
	r.terminate = func(pid int32) error {
		signaled = append(signaled, pid)
		return nil
	}

	if err := r.Reap(8100); err != nil {
		t.Fatalf("Reap returned error: %v", err)
	}

	if len(signaled) != 2 || signaled[0] != 101 || signaled[1] != 102 {
		t.Errorf("Expected pids [101 102] signaled, got %v", signaled)
	}
	if metrics.GetCounter(telemetry.MetricPortsReaped) != 2 {
		t.Error("Expected 2 signaled processes counted")
	}
}

// TestReapSkipsUnsignalableHolders verifies signal failures are never
// a hard error
func TestReapSkipsUnsignalableHolders(t *testing.T) {
	metrics := telemetry.NewMetricsCollector()
	r := New(nil, metrics)

	r.connections = func() ([]gnet.ConnectionStat, error) {
		return []gnet.ConnectionStat{listener(8100, 101), listener(8100, 102)}, nil
	}
	r.terminate = func(pid int32) error {
		if pid == 101 {
			return errors.New("operation not permitted")
		}
		return nil
	}

	if err := r.Reap(8100); err != nil {
		t.Fatalf("Expected best-effort reap to succeed, got: %v", err)
	}
	if metrics.GetCounter(telemetry.MetricReapFailures) != 1 {
		t.Error("Expected 1 signal failure counted")
	}
	if metrics.GetCounter(telemetry.MetricPortsReaped) != 1 {
		t.Error("Expected 1 signaled process counted")
	}
}

// TestReapSurvivesScanFailure verifies an unenumerable connection
// table does not block startup
func TestReapSurvivesScanFailure(t *testing.T) {
	r := New(nil, nil)
	r.connections = func() ([]gnet.ConnectionStat, error) {
		return nil, errors.New("permission denied")
	}

	if err := r.Reap(8100); err != nil {
		t.Fatalf("Expected scan failure to be non-fatal, got: %v", err)
	}
}

// TestReapFreePort verifies reaping an unheld port is a no-op against
// the real connection table
func TestReapFreePort(t *testing.T) {
	r := New(nil, nil)

	// Port 1 is privileged and should have no holder in test environments;
	// regardless, Reap must not error.
	if err := r.Reap(1); err != nil {
		t.Fatalf("Reap returned error: %v", err)
	}
}
