package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/store"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run:   runStats,
	}
	scopesCmd := &cobra.Command{
		Use:   "scopes",
		Short: "List scopes with memory counts",
		Run:   runScopes,
	}

	memCmd.AddCommand(statsCmd, scopesCmd)
}

func summarize(cmd *cobra.Command) *store.Stats {
	_, backend := openMemory(cmd.Context())
	defer backend.Close()

	stats, err := store.Summarize(cmd.Context(), backend, time.Now())
	if err != nil {
		exitErr("stats", err)
	}
	return stats
}

func runStats(cmd *cobra.Command, args []string) {
	printJSON(cmd.OutOrStdout(), summarize(cmd))
}

func runScopes(cmd *cobra.Command, args []string) {
	stats := summarize(cmd)
	if textOutput() {
		for _, s := range stats.Scopes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", s.Scope, s.Count)
		}
		return
	}
	scopes := stats.Scopes
	if scopes == nil {
		scopes = []store.ScopeStats{}
	}
	printJSON(cmd.OutOrStdout(), scopes)
}
