package cmd

import (
	"github.com/bnema/openvd/internal/config"
	"github.com/bnema/openvd/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	socketPath string

	rootCmd = &cobra.Command{
		Use:   "openvd",
		Short: "openvd - virtual displays on top of EVDI",
		Long: `openvd creates virtual monitors through the EVDI kernel module and libevdi.
Compositors see them as regular outputs; openvd keeps their framebuffers fed,
logs what the compositor does with them and can record and replay those events.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search /etc/openvd, ~/.config/openvd, .)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket (default: /run/openvd.sock for root, /tmp/openvd-$USER.sock otherwise)")
}

// loadConfig reads the config file and applies logging settings. Commands
// that need the config call it from RunE.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		return nil, err
	}

	cfg := config.Get()

	level := cfg.Logging.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if level != "" {
		if err := logger.SetLevel(level); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
