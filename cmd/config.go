package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/bnema/openvd/internal/config"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage openvd configuration",
	Long:  `Manage openvd configuration including virtual displays and libevdi settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderConfig(cfg, config.GetConfigPath()))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			config.SetConfigPath(configPath)
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a configuration file. An interactive form asks for the display
setup unless --defaults is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		defaults, _ := cmd.Flags().GetBool("defaults")

		if configPath != "" {
			config.SetConfigPath(configPath)
		}
		path := config.GetConfigPath()

		if _, err := os.Stat(path); err == nil && !force {
			logger.Infof("Configuration file already exists at: %s", path)
			logger.Info("Use --force to overwrite")
			return nil
		}

		cfg := config.DefaultConfig
		if !defaults {
			answered, err := ui.RunWizard(&cfg)
			if err != nil {
				return err
			}
			cfg = *answered
		}

		if err := config.Update(&cfg); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", config.GetConfigPath())
		logger.Info("Use 'openvd config show' to review it and 'openvd run' to start the displays")
		return nil
	},
}

var displayModes []string

var configAddDisplayCmd = &cobra.Command{
	Use:   "add-display <name>",
	Short: "Add or replace a display in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		display := config.DisplayConfig{Name: args[0]}
		for _, s := range displayModes {
			m, err := config.ParseMode(s)
			if err != nil {
				return err
			}
			display.Modes = append(display.Modes, m)
		}

		// validate against a copy so a bad display never reaches viper
		candidate := *cfg
		candidate.Displays = nil
		for _, d := range cfg.Displays {
			if d.Name != display.Name {
				candidate.Displays = append(candidate.Displays, d)
			}
		}
		candidate.Displays = append(candidate.Displays, display)
		if err := candidate.Validate(); err != nil {
			return err
		}

		if err := config.AddDisplay(display); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSuccess(fmt.Sprintf("Display %s saved to %s", display.Name, config.GetConfigPath())))
		return nil
	},
}

var configRemoveDisplayCmd = &cobra.Command{
	Use:   "remove-display <name>",
	Short: "Remove a display from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		if _, err := config.GetDisplay(args[0]); err != nil {
			return err
		}

		if err := config.RemoveDisplay(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSuccess(fmt.Sprintf("Display %s removed", args[0])))
		return nil
	},
}

func renderConfig(cfg *config.Config, path string) string {
	var b strings.Builder

	b.WriteString(ui.HeaderStyle.Render("openvd configuration"))
	b.WriteString("\n")
	b.WriteString(ui.FormatKeyValue("file", path) + "\n\n")

	b.WriteString(ui.SubheaderStyle.Render("[evdi]") + "\n")
	parent := cfg.EVDI.ParentDevice
	if parent == "" {
		parent = "(any)"
	}
	b.WriteString(ui.FormatKeyValue("parent_device", parent) + "\n")
	b.WriteString(ui.FormatKeyValue("add_device", fmt.Sprintf("%t", cfg.EVDI.AddDevice)) + "\n")
	b.WriteString(ui.FormatKeyValue("cursor_events", fmt.Sprintf("%t", cfg.EVDI.CursorEvents)) + "\n")
	b.WriteString(ui.FormatKeyValue("poll_timeout", fmt.Sprintf("%d ms", cfg.EVDI.PollTimeoutMs)) + "\n\n")

	b.WriteString(ui.SubheaderStyle.Render("[logging]") + "\n")
	level := cfg.Logging.LogLevel
	if level == "" {
		level = "(LOG_LEVEL)"
	}
	b.WriteString(ui.FormatKeyValue("log_level", level) + "\n")
	b.WriteString(ui.FormatKeyValue("native_logs", fmt.Sprintf("%t", cfg.Logging.NativeLogs)) + "\n\n")

	b.WriteString(ui.SubheaderStyle.Render("[record]") + "\n")
	record := cfg.Record.Path
	if record == "" {
		record = "(disabled)"
	}
	b.WriteString(ui.FormatKeyValue("path", record) + "\n\n")

	b.WriteString(ui.SubheaderStyle.Render(fmt.Sprintf("[[displays]] (%d)", len(cfg.Displays))) + "\n")
	for _, d := range cfg.Displays {
		modes := make([]string, len(d.Modes))
		for i, m := range d.Modes {
			modes[i] = m.String()
		}
		b.WriteString(ui.FormatListItem(d.Name+"  "+strings.Join(modes, ", "), false) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configInitCmd.Flags().Bool("defaults", false, "Write the default configuration without asking")

	configAddDisplayCmd.Flags().StringArrayVarP(&displayModes, "mode", "m", nil, "Mode as WIDTHxHEIGHT[@REFRESH], repeatable, first is preferred")
	_ = configAddDisplayCmd.MarkFlagRequired("mode")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configAddDisplayCmd)
	configCmd.AddCommand(configRemoveDisplayCmd)
	rootCmd.AddCommand(configCmd)
}
