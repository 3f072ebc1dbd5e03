package monitoring

import (
	"testing"
)

func TestProgressMonitorLifecycle(t *testing.T) {
	monitor := NewProgressMonitor()

	if err := monitor.SendHeartbeat(); err == nil {
		t.Error("expected error before Start")
	}

	if err := monitor.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := monitor.Start(); err == nil {
		t.Error("expected error on double Start")
	}

	if err := monitor.SendProgress(ProgressMessage{Model: "poisson_tree", Percent: 40}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	stats := monitor.GetStats()
	if stats.MessagesSent != 1 {
		t.Errorf("MessagesSent = %d, want 1", stats.MessagesSent)
	}

	if err := monitor.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := monitor.Stop(); err == nil {
		t.Error("expected error on double Stop")
	}
}
