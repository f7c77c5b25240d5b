package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/feedwatch/feedwatch/internal/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, Go and platform library versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		extended, err := cmd.Flags().GetBool("extended")
		if err != nil {
			return err
		}
		identity := GetAppIdentity()
		if !extended {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", identity.BinaryName, versionInfo.Version)
			return err
		}
		return writeRendered(cmd, "version", versionSummary(identity.BinaryName))
	},
}

func versionSummary(binary string) output.Summary {
	platform := crucible.GetVersion()
	return output.Summary{
		Heading: binary + " " + versionInfo.Version,
		Pairs: [][2]string{
			{"version", versionInfo.Version},
			{"commit", versionInfo.Commit},
			{"built", versionInfo.BuildDate},
			{"go", runtime.Version()},
			{"platform", runtime.GOOS + "/" + runtime.GOARCH},
			{"gofulmen", platform.Gofulmen},
			{"crucible", platform.Crucible},
		},
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("extended", "e", false, "show extended version information")
	addOutputFlags(versionCmd)
}
