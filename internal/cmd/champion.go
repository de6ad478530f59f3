package cmd

import (
	"github.com/spf13/cobra"

	"github.com/riftproxy/riftproxy/internal/output"
)

var championCmd = &cobra.Command{
	Use:   "champion",
	Short: "Query the cached champion catalog",
	Long: `Query the champion catalog held in the local store. The catalog is
filled by "static refresh" or by the server at startup; these commands never
call upstream.`,
}

var championInfoCmd = &cobra.Command{
	Use:   "info <champion-name>",
	Short: "Show a champion by name (case and spaces ignored)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			key, entry, err := rt.coordinator.ChampionInfo(args[0])
			if err != nil {
				return err
			}
			return writeView(cmd, output.ChampionView{Key: key, Entry: entry})
		})
	},
}

var championRandomCmd = &cobra.Command{
	Use:   "random",
	Short: "Pick a random champion",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			key, entry, err := rt.coordinator.RandomChampion()
			if err != nil {
				return err
			}
			return writeView(cmd, output.ChampionView{Key: key, Entry: entry})
		})
	},
}

func init() {
	for _, sub := range []*cobra.Command{championInfoCmd, championRandomCmd} {
		addOutputFlags(sub)
		championCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(championCmd)
}
