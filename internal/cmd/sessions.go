package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/feedwatch/feedwatch/internal/config"
	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/session"
	"github.com/feedwatch/feedwatch/internal/observability"
	"github.com/feedwatch/feedwatch/internal/output"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Inspect and clear persisted login sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List persisted sessions and configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(cmd.Context(), viper.AllSettings())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openStoreWith(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		sessions := session.New(db, observability.Component())
		stored, err := sessions.List(cmd.Context())
		if err != nil {
			return err
		}

		return writeRendered(cmd, "sessions", output.Sessions(withConfiguredAccounts(stored, cfg.Accounts)))
	},
}

var sessionsRemoveAll bool

var sessionsRemoveCmd = &cobra.Command{
	Use:     "remove [identity]...",
	Aliases: []string{"rm"},
	Short:   "Delete persisted sessions so the next start logs in again",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !sessionsRemoveAll {
			return fmt.Errorf("specify one or more identities or --all")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		sessions := session.New(db, observability.Component())
		identities := args
		if sessionsRemoveAll {
			stored, err := sessions.List(cmd.Context())
			if err != nil {
				return err
			}
			identities = identities[:0:0]
			for _, s := range stored {
				identities = append(identities, s.Identity)
			}
		}

		for _, identity := range identities {
			if err := sessions.Remove(cmd.Context(), identity); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s)\n", len(identities))
		return err
	},
}

// withConfiguredAccounts appends an empty entry for every configured account
// that has no stored session.
func withConfiguredAccounts(stored []core.PersistedSession, accounts []core.Account) []core.PersistedSession {
	known := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		known[s.Identity] = struct{}{}
	}
	out := append([]core.PersistedSession(nil), stored...)
	for _, account := range accounts {
		if _, ok := known[account.Username]; ok || account.Username == "" {
			continue
		}
		known[account.Username] = struct{}{}
		out = append(out, core.PersistedSession{Identity: account.Username})
	}
	return out
}

func init() {
	addOutputFlags(sessionsListCmd)
	sessionsRemoveCmd.Flags().BoolVar(&sessionsRemoveAll, "all", false, "Remove every persisted session")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsRemoveCmd)
	rootCmd.AddCommand(sessionsCmd)
}
