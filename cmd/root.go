package cmd

import (
	"os"

	"github.com/encodeous/lattice/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lattice",
	Short: "Lattice Mesh Messaging CLI",
	Long: `Lattice is a peer-to-peer mesh messaging engine for networks without infrastructure.
Every node relays for its neighbours, and every message is signed and encrypted end to end.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize Lattice",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "lt",
		Title: "Lattice Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.NodeConfigPath, "node-config", "n", state.NodeConfigPath, "node-specific config")
}
