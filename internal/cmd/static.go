package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/riftproxy/riftproxy/internal/core/engine"
	"github.com/riftproxy/riftproxy/internal/output"
)

var staticCmd = &cobra.Command{
	Use:   "static",
	Short: "Manage cached static champion data",
}

var staticRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the champion catalog when upstream has a new version",
	Long: `Compare the newest upstream static data version with the stored one and
refetch the champion catalog when they differ or the catalog is empty. When
upstream is unreachable the stored catalog is kept and reported as a fallback.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			refresh, err := rt.coordinator.RefreshStaticData(cmd.Context(), rt.APIKey())
			if err != nil && !refresh.Fallback {
				return err
			}
			return writeStaticView(cmd, output.StaticView{Refresh: refresh, Err: err})
		})
	},
}

var staticShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored static data version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *proxyRuntime) error {
			return writeStaticView(cmd, output.StaticView{Refresh: engine.StaticRefresh{
				Version: rt.cache.StaticVersion(),
				Catalog: rt.cache.Catalog(),
			}})
		})
	},
}

// writeStaticView draws a summary box for table output and falls back to the
// regular renderers otherwise.
func writeStaticView(cmd *cobra.Command, view output.StaticView) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return writeView(cmd, view)
	}

	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	sink := &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}
	if strings.TrimSpace(outPath) != "" {
		if sink, err = openSink(outPath); err != nil {
			return err
		}
	}
	defer func() { _ = sink.close() }()

	version := view.Refresh.Version.Value
	if version == "" {
		version = "(none stored)"
	}
	lines := []string{
		"Static Data",
		"",
		fmt.Sprintf("Version:   %s", version),
		fmt.Sprintf("Champions: %d", view.Refresh.Catalog.Len()),
		fmt.Sprintf("Result:    %s", view.Result()),
	}
	if view.Err != nil {
		lines = append(lines, fmt.Sprintf("Reason:    %v", view.Err))
	}
	_, err = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	return err
}

func init() {
	for _, sub := range []*cobra.Command{staticRefreshCmd, staticShowCmd} {
		addOutputFlags(sub)
		staticCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(staticCmd)
}
