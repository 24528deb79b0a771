package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live memories in insertion order",
		Run:   runList,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")
	cmd.Flags().String("prefix", "", "Filter by key prefix")
	cmd.Flags().StringToString("filter", nil, "Metadata filters (key=value)")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	cmd.Flags().Bool("keys-only", false, "Only output keys")

	memCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	prefix, _ := cmd.Flags().GetString("prefix")
	filters, _ := cmd.Flags().GetStringToString("filter")
	limit, _ := cmd.Flags().GetInt("limit")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	mem, backend := openMemory(cmd.Context())
	defer backend.Close()

	memories, err := mem.List(cmd.Context(), store.Filter{
		Meta:   parseFilters(filters),
		Scope:  scope,
		Prefix: prefix,
	})
	if err != nil {
		exitErr("list", err)
	}
	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}

	if keysOnly {
		for _, m := range memories {
			fmt.Fprintln(cmd.OutOrStdout(), m.Key)
		}
		return
	}
	printJSON(cmd.OutOrStdout(), memories)
}
