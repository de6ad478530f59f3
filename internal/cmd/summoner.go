package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/riftproxy/riftproxy/internal/core"
	"github.com/riftproxy/riftproxy/internal/output"
)

var summonerCmd = &cobra.Command{
	Use:   "summoner",
	Short: "Look up summoners through the local cache",
	Long: `Look up summoners by name or id. Cached records are returned without
calling upstream; misses go to the platform API when the rate gate allows it
and are written back to the configured store.`,
}

var summonerNameCmd = &cobra.Command{
	Use:   "name <summoner-name>",
	Short: "Resolve a summoner by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			s, err := rt.coordinator.ResolveSummonerByName(cmd.Context(), args[0], rt.APIKey())
			if err != nil {
				return err
			}
			return writeView(cmd, output.SummonerView{Summoners: []core.Summoner{s}})
		})
	},
}

var summonerIDCmd = &cobra.Command{
	Use:   "id <summoner-id>",
	Short: "Resolve a summoner by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			s, err := rt.coordinator.ResolveSummonerByID(cmd.Context(), args[0], rt.APIKey())
			if err != nil {
				return err
			}
			return writeView(cmd, output.SummonerView{Summoners: []core.Summoner{s}})
		})
	},
}

var summonerRefreshCmd = &cobra.Command{
	Use:   "refresh <summoner-name>",
	Short: "Refetch a summoner from upstream, bypassing the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			s, err := rt.coordinator.RefreshSummonerByName(cmd.Context(), args[0], rt.APIKey())
			if err != nil {
				return err
			}
			return writeView(cmd, output.SummonerView{Summoners: []core.Summoner{s}})
		})
	},
}

var summonerMasteriesCmd = &cobra.Command{
	Use:   "masteries <summoner-id>",
	Short: "List champion mastery for a summoner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			report, err := rt.coordinator.MasteriesBySummonerID(cmd.Context(), args[0], rt.APIKey())
			if err != nil {
				return err
			}
			return writeView(cmd, output.MasteryView{Report: report})
		})
	},
}

var summonerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached summoners",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			summoners := rt.cache.Summoners()
			sort.Slice(summoners, func(i, j int) bool {
				return core.NormalizeName(summoners[i].Name) < core.NormalizeName(summoners[j].Name)
			})
			return writeView(cmd, output.SummonerView{Summoners: summoners})
		})
	},
}

func init() {
	for _, sub := range []*cobra.Command{summonerNameCmd, summonerIDCmd, summonerRefreshCmd, summonerMasteriesCmd, summonerListCmd} {
		addOutputFlags(sub)
		summonerCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(summonerCmd)
}
