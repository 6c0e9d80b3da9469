// Package setup inspects the host for what openvd needs from the EVDI kernel
// module before any display is created.
package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bnema/openvd/internal/config"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/libevdi"
)

// Severity of a Finding
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Finding is the result of one host check
type Finding struct {
	Check    string
	Severity Severity
	Detail   string
	Hint     string
}

// HostCheck looks at sysfs and /dev for EVDI support
type HostCheck struct {
	SysRoot     string // normally /sys
	DevRoot     string // normally /dev
	IsRoot      func() bool
	XorgRunning func() bool
	Formatter   func() error
}

// NewHostCheck creates a check against the real filesystem
func NewHostCheck() *HostCheck {
	return &HostCheck{
		SysRoot: "/sys",
		DevRoot: "/dev",
		IsRoot:      func() bool { return os.Geteuid() == 0 },
		XorgRunning: libevdi.XorgRunning,
		Formatter:   libevdi.CheckFormatter,
	}
}

// Run runs every check for cfg and returns the findings in order
func (h *HostCheck) Run(cfg *config.Config) []Finding {
	var findings []Finding

	module := h.checkModule()
	findings = append(findings, module)
	if module.Severity == SeverityError {
		return findings
	}

	cards := h.Cards()
	findings = append(findings, h.checkCards(cfg, cards))
	findings = append(findings, h.checkAccess(cfg, cards))
	if h.XorgRunning != nil {
		findings = append(findings, h.checkXorg())
	}
	if h.Formatter != nil {
		findings = append(findings, h.checkFormatter())
	}

	return findings
}

// ModuleVersion returns the loaded evdi module version, or "" when the module
// is not loaded or does not report one
func (h *HostCheck) ModuleVersion() string {
	data, err := os.ReadFile(filepath.Join(h.SysRoot, "module", "evdi", "version"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Cards returns the DRM card names (card0, card1, ...) that belong to evdi
// platform devices
func (h *HostCheck) Cards() []string {
	pattern := filepath.Join(h.SysRoot, "devices", "platform", "evdi.*", "drm", "card*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		logger.Debugf("Failed to list evdi cards: %v", err)
		return nil
	}

	cards := make([]string, 0, len(matches))
	for _, m := range matches {
		cards = append(cards, filepath.Base(m))
	}
	sort.Strings(cards)
	return cards
}

func (h *HostCheck) checkModule() Finding {
	f := Finding{Check: "evdi module"}

	if _, err := os.Stat(filepath.Join(h.SysRoot, "module", "evdi")); err != nil {
		f.Severity = SeverityError
		f.Detail = "not loaded"
		f.Hint = "load it with: sudo modprobe evdi"
		return f
	}

	if v := h.ModuleVersion(); v != "" {
		f.Detail = "loaded, version " + v
	} else {
		f.Detail = "loaded"
	}
	return f
}

func (h *HostCheck) checkCards(cfg *config.Config, cards []string) Finding {
	f := Finding{Check: "evdi devices"}
	wanted := len(cfg.Displays)

	switch {
	case len(cards) >= wanted:
		f.Detail = fmt.Sprintf("%d available for %d display(s)", len(cards), wanted)
	case cfg.EVDI.AddDevice:
		f.Detail = fmt.Sprintf("%d available, %d will be added on start", len(cards), wanted-len(cards))
	default:
		f.Severity = SeverityWarning
		f.Detail = fmt.Sprintf("%d available for %d display(s)", len(cards), wanted)
		f.Hint = fmt.Sprintf("set evdi.add_device = true or load the module with: sudo modprobe evdi initial_device_count=%d", wanted)
	}
	return f
}

func (h *HostCheck) checkAccess(cfg *config.Config, cards []string) Finding {
	f := Finding{Check: "permissions"}

	if h.IsRoot != nil && h.IsRoot() {
		f.Detail = "running as root"
		return f
	}

	if cfg.EVDI.AddDevice {
		f.Severity = SeverityError
		f.Detail = "adding devices requires root"
		f.Hint = "run openvd with sudo"
		return f
	}

	for _, card := range cards {
		path := filepath.Join(h.DevRoot, "dri", card)
		file, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			f.Severity = SeverityError
			f.Detail = fmt.Sprintf("cannot open %s: %v", path, err)
			f.Hint = "run openvd with sudo or add your user to the 'video' group"
			return f
		}
		if err := file.Close(); err != nil {
			logger.Debugf("Failed to close %s: %v", path, err)
		}
	}

	f.Detail = fmt.Sprintf("%d card(s) accessible", len(cards))
	return f
}

func (h *HostCheck) checkXorg() Finding {
	f := Finding{Check: "Xorg"}
	if !h.XorgRunning() {
		f.Detail = "not running"
		return f
	}

	f.Severity = SeverityWarning
	f.Detail = "running"
	f.Hint = "X only picks up new EVDI outputs after a device rescan, restart the X server if they do not show up"
	return f
}

func (h *HostCheck) checkFormatter() Finding {
	f := Finding{Check: "libevdi logging"}
	if err := h.Formatter(); err != nil {
		f.Severity = SeverityError
		f.Detail = err.Error()
		if errors.Is(err, libevdi.ErrUnavailable) {
			f.Hint = "rebuild openvd with CGO_ENABLED=1 against libevdi"
		}
		return f
	}

	f.Detail = "formatter ok"
	return f
}

// Failed reports whether any finding is an error
func Failed(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
