// Dantescan discovers Dante audio devices on the local network.
//
// It browses for devices over mDNS/DNS-SD, resolves each device's IPv4
// address and presents the result as a table, a live terminal view or a
// small HTTP/WebSocket API.
//
// Usage:
//
//	dantescan [command] [flags]
//
// Running without arguments performs a one-shot scan.
// See 'dantescan --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/dantescan/internal/config"
	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

// Global flags
var (
	configPath string
	logLevel   string
	ifaceName  string
)

// registry is loaded once in PersistentPreRunE
var registry *config.Registry

var rootCmd = &cobra.Command{
	Use:   "dantescan",
	Short: "Dante Audio Device Scanner",
	Long: `Discover Dante audio devices on the local network.

Dantescan browses for Dante devices over mDNS/DNS-SD, resolves each device's
IPv4 address and reports name, model, firmware version and address.

If no command is specified, a one-shot scan is performed.`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	rootCmd.PersistentFlags().StringVarP(&ifaceName, "interface", "i", "", "Network interface to browse on (default: all)")

	rootCmd.AddCommand(versionCmd)
}

// setup initialises logging and loads the device registry.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		registry, err = config.LoadRegistryFrom(configPath)
	} else {
		registry, err = config.LoadRegistry()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := logLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = registry.Preferences.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}

	if ifaceName == "" {
		ifaceName = registry.Preferences.Interface
	}
	return nil
}

// saveRegistry writes the registry back to where it was loaded from.
func saveRegistry() error {
	if configPath != "" {
		return registry.SaveTo(configPath)
	}
	return registry.Save()
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			return writeJSON(cmd.OutOrStdout(), version.Get())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dantescan %s\n", version.Full())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version information as JSON")
}
