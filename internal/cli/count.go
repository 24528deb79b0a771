package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "count <document.yaml|->",
		Short: "Count tokens in a context document before budgeting",
		Args:  cobra.ExactArgs(1),
		Run:   runCount,
	}

	cmd.Flags().StringP("phase", "p", "", "Count this phase instead of the document state's")
	cmd.Flags().Bool("memory", false, "Bind the configured memory store")

	RootCmd.AddCommand(cmd)
}

func runCount(cmd *cobra.Command, args []string) {
	phaseName, _ := cmd.Flags().GetString("phase")
	bind, _ := cmd.Flags().GetBool("memory")

	cx, closeFn := buildContext(cmd.Context(), args[0], bind)
	defer closeFn()

	n, err := cx.TokenCount(cmd.Context(), phaseName)
	if err != nil {
		exitErr("count", err)
	}
	if phaseName == "" {
		phaseName = cx.CurrentPhase()
	}

	if textOutput() {
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return
	}
	printJSON(cmd.OutOrStdout(), map[string]any{
		"phase":  phaseName,
		"tokens": n,
		"limit":  cx.Budget().MaxTokens,
	})
}
