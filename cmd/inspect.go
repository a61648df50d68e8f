package cmd

import (
	"fmt"
	"strings"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Inspects the running node, or its configuration when it is stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.ReadNodeConfig(state.NodeConfigPath)
		if err != nil {
			return err
		}
		if cfg.IPCPath != "" {
			live, err := core.IPCGet(cmd.Context(), cfg.IPCPath, "inspect")
			if err == nil {
				fmt.Print(live)
				return nil
			}
			fmt.Printf("node is not running (%s), showing config\n", err)
		}
		fmt.Print(describe(cfg))
		if cfg.PinPath == "" {
			return nil
		}
		pins, err := core.NewPinStore(cfg.PinPath, nil)
		if err != nil {
			return err
		}
		fmt.Printf("pinned nodes: %d\n", pins.Len())
		return nil
	},
	GroupID: "lt",
}

func describe(cfg *state.LocalCfg) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("node: %s (%s)\n", cfg.Id, cfg.Username))
	if err := state.NodeConfigValidator(cfg); err != nil {
		sb.WriteString(fmt.Sprintf("config is invalid: %s\n", err))
		return sb.String()
	}
	fp, err := fingerprint(cfg.Identity().Node())
	if err == nil {
		sb.WriteString(fmt.Sprintf("fingerprint: %s\n", fp))
	}
	if cfg.Listen.IsValid() {
		sb.WriteString(fmt.Sprintf("listen: %s\n", cfg.Listen))
	}
	for _, p := range cfg.Peers {
		sb.WriteString(fmt.Sprintf("peer: %s\n", p))
	}
	return sb.String()
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
