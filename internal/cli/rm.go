package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a memory",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRm,
	}

	cmd.Flags().Bool("expired", false, "Delete every expired memory instead of a key")

	memCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	expired, _ := cmd.Flags().GetBool("expired")

	mem, backend := openMemory(cmd.Context())
	defer backend.Close()

	if expired {
		n, err := mem.PruneExpired(cmd.Context())
		if err != nil {
			exitErr("rm", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"removed":%d}`+"\n", n)
		return
	}

	if len(args) == 0 {
		exitErr("rm", fmt.Errorf("key is required"))
	}
	key := args[0]
	if err := mem.Delete(cmd.Context(), key); err != nil {
		exitErr("rm", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"key":%q}`+"\n", key)
}
