package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"mediasort/internal/config"
	"mediasort/internal/logging"
)

// mountSettleDelay gives the desktop automounter time to mount a new volume
// under the mount roots before the cycle looks for it.
const mountSettleDelay = 5 * time.Second

// netlinkMonitor listens for udev netlink events and requests a cycle when a
// block device carrying a filesystem appears.
type netlinkMonitor struct {
	logger *slog.Logger
	notify func(reason string) bool
	settle time.Duration

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	pending *time.Timer
	running bool
}

// newNetlinkMonitor returns nil unless removable media triggers are enabled.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, notify func(string) bool) *netlinkMonitor {
	if cfg == nil || !cfg.Daemon.RemovableMedia {
		return nil
	}
	return &netlinkMonitor{
		logger: logging.NewComponentLogger(logger, "netlink-monitor"),
		notify: notify,
		settle: mountSettleDelay,
	}
}

// Start begins listening for udev netlink events.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; removable media will be picked up on the interval",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "card insertion does not trigger an immediate cycle"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
	)
	return nil
}

// Stop shuts down the netlink monitor and drops any pending trigger.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "card insertion may not trigger a cycle"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=block, ID_FS_USAGE=filesystem, ACTION=add.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":   "block",
			"ID_FS_USAGE": "filesystem",
		},
	})
	return rules
}

// handleEvent schedules a cycle once the mount has had time to settle.
// Insertions arriving within the settle window share one trigger.
func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	devname := m.extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	m.logger.Info("removable media detected via netlink",
		logging.String(logging.FieldEventType, "netlink_media_detected"),
		logging.String("device", devname),
		logging.String("label", uevent.Env["ID_FS_LABEL"]),
		logging.String("fs_type", uevent.Env["ID_FS_TYPE"]),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(m.settle, m.fire)
}

func (m *netlinkMonitor) fire() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	if m.notify != nil {
		m.notify(TriggerMedia)
	}
}

// extractDeviceName gets the device path from a uevent.
func (m *netlinkMonitor) extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
