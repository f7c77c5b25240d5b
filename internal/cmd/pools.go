package cmd

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedwatch/feedwatch/internal/core/store"
	"github.com/feedwatch/feedwatch/internal/output"
)

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "Manage persisted proxy and credential quota snapshots",
	Long: `The serve command snapshots proxy and credential quota state after every
session refresh. These commands inspect or clear those snapshots.`,
}

var (
	poolsListAll     bool
	poolsListPrefix  string
	poolsListKind    string
	poolsListBlocked bool
)

var poolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored quota snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RateLimitQuery{
			All:         poolsListAll,
			Prefix:      strings.TrimSpace(poolsListPrefix),
			Kind:        strings.TrimSpace(poolsListKind),
			BlockedOnly: poolsListBlocked,
		}
		if query.Prefix == "" && query.Kind == "" && !query.BlockedOnly {
			query.All = true
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeRendered(cmd, "pools.list", output.RateLimits(entries))
	},
}

var (
	poolsResetAll      bool
	poolsResetResource string
	poolsResetPrefix   string
	poolsResetKind     string
	poolsResetYes      bool
	poolsResetDryRun   bool
)

var poolsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored quota snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.RateLimitQuery{
			All:      poolsResetAll,
			Resource: strings.TrimSpace(poolsResetResource),
			Prefix:   strings.TrimSpace(poolsResetPrefix),
			Kind:     strings.TrimSpace(poolsResetKind),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !poolsResetYes && !poolsResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		var deleted int64
		if !poolsResetDryRun {
			deleted, err = db.ResetRateLimits(cmd.Context(), query)
			if err != nil {
				return err
			}
		}

		return writeRendered(cmd, "pools.reset", resetSummary(matched, deleted, poolsResetDryRun))
	},
}

func resetSummary(matched int, deleted int64, dryRun bool) output.Summary {
	heading := "Quota Reset"
	if dryRun {
		heading = "Quota Reset (dry run)"
	}
	return output.Summary{
		Heading: heading,
		Pairs: [][2]string{
			{"matched", strconv.Itoa(matched)},
			{"deleted", strconv.FormatInt(deleted, 10)},
			{"dry_run", strconv.FormatBool(dryRun)},
		},
	}
}

func init() {
	addOutputFlags(poolsListCmd)
	poolsListCmd.Flags().BoolVar(&poolsListAll, "all", false, "List every resource")
	poolsListCmd.Flags().StringVar(&poolsListPrefix, "prefix", "", "List resources with matching prefix (e.g. proxy:)")
	poolsListCmd.Flags().StringVar(&poolsListKind, "kind", "", "List only proxy or credential resources")
	poolsListCmd.Flags().BoolVar(&poolsListBlocked, "blocked", false, "List only blocked resources")

	addOutputFlags(poolsResetCmd)
	poolsResetCmd.Flags().BoolVar(&poolsResetAll, "all", false, "Reset every resource")
	poolsResetCmd.Flags().StringVar(&poolsResetResource, "resource", "", "Reset a single resource (exact match, e.g. credential:alice)")
	poolsResetCmd.Flags().StringVar(&poolsResetPrefix, "prefix", "", "Reset resources with matching prefix")
	poolsResetCmd.Flags().StringVar(&poolsResetKind, "kind", "", "Reset every proxy or every credential resource")
	poolsResetCmd.Flags().BoolVar(&poolsResetYes, "yes", false, "Confirm destructive reset")
	poolsResetCmd.Flags().BoolVar(&poolsResetDryRun, "dry-run", false, "Show what would be deleted")

	poolsCmd.AddCommand(poolsListCmd, poolsResetCmd)
	rootCmd.AddCommand(poolsCmd)
}
