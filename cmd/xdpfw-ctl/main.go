// Command xdpfw-ctl is the administrative CLI for the host-stack
// classifier: enabling/disabling classification per interface and
// printing aggregate counters.
//
// This binary talks to the same pinned shared maps HSC and KC use; it
// does not run a classifier of its own, only opens the tables to report
// on live state.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/runZeroInc/xdpfw/internal/hsc"
	"github.com/runZeroInc/xdpfw/internal/platform"
	"github.com/runZeroInc/xdpfw/internal/sml"
)

var pinRoot string

func main() {
	root := &cobra.Command{
		Use:          "xdpfw-ctl",
		Short:        "Administrative CLI for the host-stack classifier",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&pinRoot, "pin-root", sml.DefaultPinRoot, "pinned eBPF map namespace root")

	root.AddCommand(classifyCommand())
	root.AddCommand(showCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}

// classifyCommand implements "classify <interface> [disable]": enable
// classification on an interface by default, or disable it with the
// trailing "disable" argument.
func classifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <interface> [disable]",
		Short: "Enable or disable classification on an interface",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := platform.NewLogger(false)
			tables, err := sml.Open(pinRoot, log)
			if err != nil {
				return err
			}
			defer tables.Close()

			ifIndex, err := resolveIfaceIndex(args[0])
			if err != nil {
				return err
			}

			enabled := true
			if len(args) == 2 && args[1] == "disable" {
				enabled = false
			}

			c := hsc.New(tables, log)
			c.SetEnabled(ifIndex, enabled)

			state := "enabled"
			if !enabled {
				state = "disabled"
			}
			fmt.Printf("[INFO] classification %s on %s\n", state, args[0])
			return nil
		},
	}
}

// showCommand implements "show <classify-command>": total packets,
// total drops, total bytes, drop rate percentage, and per-interface
// {pass, drop, redirect} rows.
func showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <classify-command>",
		Short: "Show aggregate and per-interface counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := platform.NewLogger(false)
			tables, err := sml.Open(pinRoot, log)
			if err != nil {
				return err
			}
			defer tables.Close()

			c := hsc.New(tables, log)
			stats := c.SnapshotStats()

			fmt.Printf("total_packets=%d total_drops=%d total_bytes=%d drop_rate=%.2f%%\n",
				stats.TotalPackets, stats.TotalDrops, stats.TotalBytes, stats.DropRatePct)
			for idx, row := range stats.PerInterface {
				if !row.Enabled {
					continue
				}
				fmt.Printf("  iface=%d pass=%d drop=%d redirect=%d\n", idx, row.PassCount, row.DropCount, row.RedirectCount)
			}
			return nil
		},
	}
}

func resolveIfaceIndex(name string) (int, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, fmt.Errorf("resolve interface %s: %w", name, err)
	}
	return iface.Index, nil
}
