package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/output"
)

var targetsCmd = &cobra.Command{
	Use:     "targets",
	Aliases: []string{"target"},
	Short:   "Manage watched accounts",
}

var targetsAddCmd = &cobra.Command{
	Use:   "add <handle>...",
	Short: "Start watching one or more accounts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		var errs []error
		for _, arg := range args {
			handle := core.NormalizeHandle(arg)
			if err := db.AddTarget(cmd.Context(), handle); err != nil {
				errs = append(errs, err)
				continue
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Now monitoring @%s\n", handle)
		}
		return errors.Join(errs...)
	},
}

var targetsRemoveCmd = &cobra.Command{
	Use:     "remove <handle>...",
	Aliases: []string{"rm"},
	Short:   "Stop watching one or more accounts",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		var errs []error
		for _, arg := range args {
			handle := core.NormalizeHandle(arg)
			if err := db.RemoveTarget(cmd.Context(), handle); err != nil {
				errs = append(errs, err)
				continue
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped monitoring @%s\n", handle)
		}
		return errors.Join(errs...)
	},
}

var targetsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List watched accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		targets, err := db.ListTargets(cmd.Context())
		if err != nil {
			return err
		}
		return writeRendered(cmd, "targets", output.Targets(targets))
	},
}

var targetsClearYes bool

var targetsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Stop watching every account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !targetsClearYes {
			return errors.New("clear requires --yes")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.ClearTargets(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d target(s)\n", removed)
		return err
	},
}

func init() {
	addOutputFlags(targetsListCmd)
	targetsClearCmd.Flags().BoolVar(&targetsClearYes, "yes", false, "Confirm removing every target")

	targetsCmd.AddCommand(targetsAddCmd, targetsRemoveCmd, targetsListCmd, targetsClearCmd)
	rootCmd.AddCommand(targetsCmd)
}
