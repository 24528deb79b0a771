package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve memories by similarity or keyword",
		Long: "Rank memories against the query by embedding similarity when an embedder is " +
			"configured, otherwise by case-insensitive substring match.",
		Run: runSearch,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")
	cmd.Flags().StringToString("filter", nil, "Metadata filters (key=value)")
	cmd.Flags().IntP("top-k", "k", memory.DefaultTopK, "Max results")

	memCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	filters, _ := cmd.Flags().GetStringToString("filter")
	topK, _ := cmd.Flags().GetInt("top-k")

	mem, backend := openMemory(cmd.Context())
	defer backend.Close()

	hits, err := mem.Retrieve(cmd.Context(), memory.RetrieveParams{
		Query:   strings.Join(args, " "),
		Filters: parseFilters(filters),
		Scope:   scope,
		TopK:    topK,
	})
	if err != nil {
		exitErr("search", err)
	}
	if hits == nil {
		hits = []memory.Hit{}
	}
	printJSON(cmd.OutOrStdout(), hits)
}
