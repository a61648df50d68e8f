package cmd

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/lattice/state"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "init [username]",
	Short: "Create a node configuration with a fresh identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := state.UsernameValidator(name); err != nil {
			return fmt.Errorf("invalid username: %w", err)
		}
		bits, _ := cmd.Flags().GetInt("bits")
		id, err := state.GenerateIdentity(name, bits)
		if err != nil {
			return err
		}
		cfg := state.NewLocalCfg(id)

		listen, _ := cmd.Flags().GetString("listen")
		if listen != "" {
			if cfg.Listen, err = netip.ParseAddrPort(listen); err != nil {
				return fmt.Errorf("invalid listen address: %w", err)
			}
		}
		peers, _ := cmd.Flags().GetStringSlice("peer")
		for _, p := range peers {
			addr, err := netip.ParseAddrPort(p)
			if err != nil {
				return fmt.Errorf("invalid peer %q: %w", p, err)
			}
			cfg.Peers = append(cfg.Peers, addr)
		}
		cfg.LogPath, _ = cmd.Flags().GetString("log")
		cfg.PinPath, _ = cmd.Flags().GetString("pins")
		cfg.IPCPath, _ = cmd.Flags().GetString("ipc")

		if err = state.NodeConfigValidator(&cfg); err != nil {
			return err
		}
		out := cmd.Flag("output").Value.String()
		if err = state.WriteNodeConfig(out, &cfg); err != nil {
			return err
		}
		fmt.Printf("created node %s (%s) at %s\n", cfg.Id, cfg.Username, out)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", "node.yaml", "node config output file path")
	newCmd.Flags().StringP("listen", "l", fmt.Sprintf("0.0.0.0:%d", state.DefaultPort), "TCP address to accept neighbours on, empty to disable")
	newCmd.Flags().StringSliceP("peer", "p", nil, "TCP neighbour to dial, may be repeated")
	newCmd.Flags().String("log", "", "log file path")
	newCmd.Flags().String("pins", "pins.yaml", "pinned key store path")
	newCmd.Flags().String("ipc", "/tmp/lattice.sock", "control socket path, empty to disable")
	newCmd.Flags().Int("bits", state.SigningKeyBits, "RSA signing key size")
}
