package cmd

import (
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/riftproxy/riftproxy/internal/output"
)

var extended bool

// versionView lists build metadata as key/value rows.
type versionView struct {
	binary string
	fields [][2]string
}

func (v versionView) Title() string    { return "" }
func (v versionView) Header() []string { return []string{"Field", "Value"} }

func (v versionView) Rows() [][]string {
	rows := make([][]string, 0, len(v.fields))
	for _, f := range v.fields {
		rows = append(rows, []string{f[0], f[1]})
	}
	return rows
}

func (v versionView) Value() any {
	out := make(map[string]string, len(v.fields)+1)
	out["binary"] = v.binary
	for _, f := range v.fields {
		out[f[0]] = f[1]
	}
	return out
}

func newVersionView(binary string, withExtended bool) versionView {
	view := versionView{
		binary: binary,
		fields: [][2]string{{"version", versionInfo.Version}},
	}
	if withExtended {
		version := crucible.GetVersion()
		view.fields = append(view.fields,
			[2]string{"commit", versionInfo.Commit},
			[2]string{"built", versionInfo.BuildDate},
			[2]string{"go", runtime.Version()},
			[2]string{"gofulmen", version.Gofulmen},
			[2]string{"crucible", version.Crucible},
		)
	}
	return view
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for commit, build date, Go, Gofulmen and Crucible versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		if !extended && format == output.FormatTable {
			cmd.Printf("%s %s\n", identity.BinaryName, versionInfo.Version)
			return nil
		}
		return writeView(cmd, newVersionView(identity.BinaryName, extended))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	addOutputFlags(versionCmd)
}
