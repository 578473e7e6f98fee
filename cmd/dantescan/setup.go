package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/dantescan/internal/netif"
	"github.com/muurk/dantescan/internal/ui"
	"github.com/muurk/dantescan/internal/wizard"
)

// setupCmd launches the interactive preferences wizard
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Choose the browse interface and scan time interactively",
	Long: `Launch an interactive wizard that stores the interface to browse on
and how long a scan collects devices in the config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ui.IsTerminal() {
			return errors.New("setup needs an interactive terminal")
		}

		list, err := netif.List()
		if err != nil {
			return err
		}

		saved, err := wizard.Run(list, registry.Preferences)
		if err != nil || !saved {
			return err
		}
		if err := saveRegistry(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		iface := registry.Preferences.Interface
		if iface == "" {
			iface = "all"
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Preferences saved", []ui.Param{
			{Key: "Interface", Value: iface},
			{Key: "Scan wait", Value: fmt.Sprintf("%ds", registry.Preferences.ScanWait)},
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
