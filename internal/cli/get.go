package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	memCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	mem, backend := openMemory(cmd.Context())
	defer backend.Close()

	m, err := mem.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if textOutput() {
		fmt.Fprintln(cmd.OutOrStdout(), m.Value)
		return
	}
	printJSON(cmd.OutOrStdout(), m)
}
