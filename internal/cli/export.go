package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export every stored record, expired ones included, as a JSON array. Filter by scope with -s.",
		Run:   runExport,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")
	cmd.Flags().String("prefix", "", "Filter by key prefix")

	memCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	prefix, _ := cmd.Flags().GetString("prefix")

	_, backend := openMemory(cmd.Context())
	defer backend.Close()

	memories, err := store.ExportAll(cmd.Context(), backend, store.Filter{Scope: scope, Prefix: prefix})
	if err != nil {
		exitErr("export", err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}
	printJSON(cmd.OutOrStdout(), memories)
}
