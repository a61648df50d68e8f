package cmd

import (
	"log/slog"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/service"
	"github.com/encodeous/lattice/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run lattice",
	Long:  `This will run a lattice node on the current host, accepting and dialling the TCP neighbours in its config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.ReadNodeConfig(state.NodeConfigPath)
		if err != nil {
			return err
		}
		if err = state.NodeConfigValidator(cfg); err != nil {
			return err
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}

		return core.Start(*cfg, level, func(l *core.Lattice) []core.Module {
			files := service.NewDirFileStore()
			text := service.NewTextService(l.Controller, service.NewMemoryMessageStore(), l.Log)
			text.OnText = func(m service.StoredMessage) {
				l.Log.Info("message", "from", m.Peer, "chat", m.Text.ChatId, "text", m.Text.Text)
			}
			return []core.Module{
				text,
				service.NewPhotoService(l.Controller, service.PhotoFile(l.PhotoPath), l.Log),
				service.NewChatService(l.Controller, l.Id, l.Log),
				service.NewFileService(l.Controller, files, l.Log),
			}
		})
	},
	GroupID: "lt",
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringVar(&core.DebugAddr, "debug-addr", "", "serve expvar metrics on this address")
}
