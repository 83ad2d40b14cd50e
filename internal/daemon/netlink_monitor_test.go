package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"mediasort/internal/config"
	"mediasort/internal/logging"
)

func mediaConfig() *config.Config {
	cfg := config.Default()
	cfg.Daemon.RemovableMedia = true
	return &cfg
}

func TestNewNetlinkMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(nil, nil, nil); m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("disabled trigger returns nil", func(t *testing.T) {
		cfg := config.Default()
		if m := newNetlinkMonitor(&cfg, nil, nil); m != nil {
			t.Error("expected nil monitor when removable_media is off")
		}
	})

	t.Run("enabled trigger creates monitor", func(t *testing.T) {
		m := newNetlinkMonitor(mediaConfig(), nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if m.settle != mountSettleDelay {
			t.Errorf("expected default settle delay, got %s", m.settle)
		}
	})
}

func TestNetlinkMonitorStopStartIdempotency(t *testing.T) {
	t.Run("nil monitor is inert", func(t *testing.T) {
		var m *netlinkMonitor
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor should return nil, got: %v", err)
		}
		m.Stop()
		if m.Running() {
			t.Error("expected Running() to return false for nil monitor")
		}
	})

	t.Run("double stop is safe", func(t *testing.T) {
		m := newNetlinkMonitor(mediaConfig(), logging.NewNop(), nil)
		m.Stop()
		m.Stop()
		if m.Running() {
			t.Error("expected Running() to return false after Stop on unstarted monitor")
		}
	})

	t.Run("start without privileges is not fatal", func(t *testing.T) {
		m := newNetlinkMonitor(mediaConfig(), logging.NewNop(), nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := m.Start(ctx); err != nil {
			t.Fatalf("Start returned %v", err)
		}
		m.Stop()
	})
}

func TestBuildMatcher(t *testing.T) {
	m := newNetlinkMonitor(mediaConfig(), nil, nil)
	matcher := m.buildMatcher()

	tests := []struct {
		name  string
		event netlink.UEvent
		want  bool
	}{
		{
			name: "filesystem added",
			event: netlink.UEvent{Action: netlink.ADD, Env: map[string]string{
				"SUBSYSTEM": "block", "ID_FS_USAGE": "filesystem", "DEVNAME": "/dev/sdb1",
			}},
			want: true,
		},
		{
			name: "change is ignored",
			event: netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{
				"SUBSYSTEM": "block", "ID_FS_USAGE": "filesystem",
			}},
		},
		{
			name: "remove is ignored",
			event: netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{
				"SUBSYSTEM": "block", "ID_FS_USAGE": "filesystem",
			}},
		},
		{
			name: "partition table without filesystem",
			event: netlink.UEvent{Action: netlink.ADD, Env: map[string]string{
				"SUBSYSTEM": "block",
			}},
		},
		{
			name: "non block subsystem",
			event: netlink.UEvent{Action: netlink.ADD, Env: map[string]string{
				"SUBSYSTEM": "usb", "ID_FS_USAGE": "filesystem",
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matcher.Evaluate(tt.event); got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleEvent(t *testing.T) {
	t.Run("ignores event without device name", func(t *testing.T) {
		var calls atomic.Int32
		m := newNetlinkMonitor(mediaConfig(), logging.NewNop(), func(string) bool {
			calls.Add(1)
			return true
		})
		m.settle = time.Millisecond
		m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
		time.Sleep(50 * time.Millisecond)
		if calls.Load() != 0 {
			t.Error("notify should not be called for event without device name")
		}
	})

	t.Run("coalesces insertions within the settle window", func(t *testing.T) {
		reasons := make(chan string, 4)
		m := newNetlinkMonitor(mediaConfig(), logging.NewNop(), func(reason string) bool {
			reasons <- reason
			return true
		})
		m.settle = 30 * time.Millisecond
		event := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "/dev/sdb1"}}
		m.handleEvent(event)
		m.handleEvent(event)

		select {
		case reason := <-reasons:
			if reason != TriggerMedia {
				t.Fatalf("unexpected trigger reason %q", reason)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("notify was not called")
		}
		select {
		case <-reasons:
			t.Fatal("expected a single trigger for both events")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("stop drops pending trigger", func(t *testing.T) {
		var calls atomic.Int32
		m := newNetlinkMonitor(mediaConfig(), logging.NewNop(), func(string) bool {
			calls.Add(1)
			return true
		})
		m.settle = 50 * time.Millisecond
		m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "sdc"}})
		m.Stop()
		time.Sleep(120 * time.Millisecond)
		if calls.Load() != 0 {
			t.Error("notify should not fire after Stop")
		}
	})
}

func TestExtractDeviceName(t *testing.T) {
	m := newNetlinkMonitor(mediaConfig(), nil, nil)
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"DEVNAME": "/dev/sdb1"}, "/dev/sdb1"},
		{map[string]string{"DEVNAME": "mmcblk0p1"}, "/dev/mmcblk0p1"},
		{map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/1-1/host6/block/sdb/sdb1"}, "/dev/sdb1"},
		{map[string]string{}, ""},
	}
	for _, tt := range tests {
		if got := m.extractDeviceName(netlink.UEvent{Env: tt.env}); got != tt.want {
			t.Errorf("extractDeviceName(%v) = %q, want %q", tt.env, got, tt.want)
		}
	}
}
