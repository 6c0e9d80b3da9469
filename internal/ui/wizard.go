package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/openvd/internal/config"
	"github.com/charmbracelet/huh"
)

// WizardAnswers holds the raw values collected by the config wizard
type WizardAnswers struct {
	Count        string
	Modes        string // comma-separated WxH@R list, applied to every display
	NamePrefix   string
	ParentDevice string
	CursorEvents bool
	RecordPath   string
}

// DefaultAnswers seeds the wizard from an existing config
func DefaultAnswers(cfg *config.Config) WizardAnswers {
	a := WizardAnswers{
		Count:        strconv.Itoa(len(cfg.Displays)),
		NamePrefix:   "virtual",
		ParentDevice: cfg.EVDI.ParentDevice,
		CursorEvents: cfg.EVDI.CursorEvents,
		RecordPath:   cfg.Record.Path,
	}
	if len(cfg.Displays) > 0 {
		modes := make([]string, len(cfg.Displays[0].Modes))
		for i, m := range cfg.Displays[0].Modes {
			modes[i] = m.String()
		}
		a.Modes = strings.Join(modes, ",")
	}
	return a
}

// BuildConfig turns wizard answers into a validated config on top of base
func BuildConfig(base config.Config, a WizardAnswers) (*config.Config, error) {
	count, err := validateCount(a.Count)
	if err != nil {
		return nil, err
	}
	modes, err := parseModes(a.Modes)
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSpace(a.NamePrefix)
	if prefix == "" {
		prefix = "virtual"
	}

	cfg := base
	cfg.EVDI.ParentDevice = strings.TrimSpace(a.ParentDevice)
	cfg.EVDI.CursorEvents = a.CursorEvents
	cfg.Record.Path = strings.TrimSpace(a.RecordPath)
	cfg.Displays = make([]config.DisplayConfig, count)
	for i := range cfg.Displays {
		cfg.Displays[i] = config.DisplayConfig{
			Name:  fmt.Sprintf("%s-%d", prefix, i+1),
			Modes: append([]config.ModeConfig(nil), modes...),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RunWizard asks for a display setup interactively
func RunWizard(base *config.Config) (*config.Config, error) {
	a := DefaultAnswers(base)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Number of virtual displays").
				Value(&a.Count).
				Validate(func(s string) error {
					_, err := validateCount(s)
					return err
				}),
			huh.NewInput().
				Title("Display modes").
				Description("Comma-separated WxH@R, the first one is preferred").
				Value(&a.Modes).
				Validate(func(s string) error {
					_, err := parseModes(s)
					return err
				}),
			huh.NewInput().
				Title("Display name prefix").
				Value(&a.NamePrefix),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Parent device").
				Description("sysfs path of the GPU to attach to, empty for any").
				Value(&a.ParentDevice),
			huh.NewConfirm().
				Title("Report cursor as events?").
				Description("Otherwise the cursor is composited into frames").
				Value(&a.CursorEvents),
			huh.NewInput().
				Title("Record events to").
				Description("Empty disables recording").
				Value(&a.RecordPath),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("config wizard cancelled: %w", err)
	}

	return BuildConfig(*base, a)
}

func validateCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("enter a number")
	}
	if n < 1 || n > 4 {
		return 0, errors.New("between 1 and 4 displays are supported")
	}
	return n, nil
}

func parseModes(s string) ([]config.ModeConfig, error) {
	var modes []config.ModeConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := config.ParseMode(part)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	if len(modes) == 0 {
		return nil, errors.New("at least one mode is required")
	}
	return modes, nil
}
