package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/muurk/dantescan/internal/ui"
)

// devicesCmd manages remembered devices
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage remembered devices",
	Long: `List, nickname and forget the devices recorded by 'dantescan scan --remember'.

Nicknames are shown next to device names in scan and watch output.`,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := registry.DeviceNames()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.MutedStyle.Render("  No remembered devices"))
			return nil
		}

		rows := make([][]string, len(names))
		for i, name := range names {
			d := registry.GetDevice(name)
			seen := "never"
			if !d.LastSeen.IsZero() {
				seen = d.LastSeen.Local().Format(time.DateTime)
			}
			rows[i] = []string{name, d.Nickname, d.Model, d.Firmware, d.LastIP, seen}
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(ui.MutedStyle).
			Headers("NAME", "NICKNAME", "MODEL", "FIRMWARE", "LAST IP", "LAST SEEN").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return ui.TableHeaderStyle
				}
				return ui.TableCellStyle
			})
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

var devicesNicknameCmd = &cobra.Command{
	Use:   "nickname <device> <nickname>",
	Short: "Set a nickname for a device",
	Example: `  dantescan devices nickname "Ultimo-1a2b3c" "Stage left"

  # Clear a nickname
  dantescan devices nickname "Ultimo-1a2b3c" ""`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry.SetDeviceNickname(args[0], args[1])
		if err := saveRegistry(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.SuccessMarker, args[0])
		return nil
	},
}

var devicesForgetCmd = &cobra.Command{
	Use:   "forget <device>...",
	Short: "Forget remembered devices",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			if !registry.Forget(name) {
				return fmt.Errorf("device not remembered: %s", name)
			}
		}
		return saveRegistry()
	},
}

var pruneOlderThan time.Duration

var devicesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Forget devices not seen recently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stale := registry.Stale(pruneOlderThan, time.Now())
		for _, name := range stale {
			registry.Forget(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.FailureMarker, name)
		}
		if len(stale) == 0 {
			return nil
		}
		return saveRegistry()
	},
}

func init() {
	devicesPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Forget devices last seen before this long ago")

	devicesCmd.AddCommand(devicesListCmd, devicesNicknameCmd, devicesForgetCmd, devicesPruneCmd)
	rootCmd.AddCommand(devicesCmd)
}
