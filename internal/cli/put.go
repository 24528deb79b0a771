package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put <key> [value]",
		Short: "Store a memory",
		Long:  "Store a memory under key. The value can be positional args or piped via stdin.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runPut,
	}

	cmd.Flags().StringP("scope", "s", "", "Scope tag")
	cmd.Flags().String("meta", "", "JSON metadata")
	cmd.Flags().String("ttl", "", "Expire after a duration: 7d, 24h, 30m, 60s")

	memCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	key := args[0]
	scope, _ := cmd.Flags().GetString("scope")
	metaStr, _ := cmd.Flags().GetString("meta")
	ttlStr, _ := cmd.Flags().GetString("ttl")

	value, err := readInput(args[1:])
	if err != nil {
		exitErr("read stdin", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		exitErr("put", fmt.Errorf("value is required (positional arg or stdin)"))
	}

	meta, err := parseMeta(metaStr)
	if err != nil {
		exitErr("put", err)
	}
	opts := []memory.StoreOption{memory.WithMeta(meta), memory.WithScope(scope)}
	if ttlStr != "" {
		ttl, err := store.ParseTTL(ttlStr)
		if err != nil {
			exitErr("put", err)
		}
		opts = append(opts, memory.WithTTL(ttl))
	}

	mem, backend := openMemory(cmd.Context())
	defer backend.Close()

	res, err := mem.Store(cmd.Context(), key, value, opts...)
	if err != nil {
		exitErr("put", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
