package health

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"transphire/internal/logging"
)

// DeviceMonitor listens for udev block-device removals so stages writing to
// removable targets notice a pulled disk before their next copy fails.
type DeviceMonitor struct {
	logger   *slog.Logger
	onRemove func(device string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewDeviceMonitor returns a monitor that calls onRemove for every removed
// block device.
func NewDeviceMonitor(logger *slog.Logger, onRemove func(device string)) *DeviceMonitor {
	return &DeviceMonitor{
		logger:   logging.NewComponentLogger(logger, "device-monitor"),
		onRemove: onRemove,
	}
}

// Start connects to the kernel uevent socket. A connection failure is logged
// and ignored; mount probes still catch the removal on the next failure.
func (m *DeviceMonitor) Start(ctx context.Context) error {
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
		logging.WarnWithContext(m.logger, "udev netlink unavailable; device removal detection disabled",
			"netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "grant the process access to netlink sockets"),
		)
		return nil
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.loop(ctx, conn, quit)
	m.logger.Info("device monitor started", logging.String(logging.FieldEventType, "device_monitor_started"))
	return nil
}

// Stop closes the netlink socket. Safe to call more than once.
func (m *DeviceMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
}

// Running reports whether the monitor is listening.
func (m *DeviceMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *DeviceMonitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, removalMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-events:
			m.handleEvent(ev)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "device monitor error", "device_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
			)
		}
	}
}

// removalMatcher matches SUBSYSTEM=block with ACTION=remove.
func removalMatcher() netlink.Matcher {
	action := "remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "block"},
	})
	return rules
}

func (m *DeviceMonitor) handleEvent(ev netlink.UEvent) {
	if string(ev.Action) != "remove" || ev.Env["SUBSYSTEM"] != "block" {
		return
	}
	device := deviceName(ev)
	if device == "" {
		return
	}
	m.logger.Warn("block device removed",
		logging.String("device", device),
		logging.String(logging.FieldEventType, "device_removed"),
		logging.String(logging.FieldErrorHint, "reattach the disk; affected stages resume after the mount probe succeeds"),
	)
	if m.onRemove != nil {
		m.onRemove(device)
	}
}

func deviceName(ev netlink.UEvent) string {
	if name := ev.Env["DEVNAME"]; name != "" {
		if strings.HasPrefix(name, "/") {
			return name
		}
		return "/dev/" + name
	}
	devpath := ev.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
