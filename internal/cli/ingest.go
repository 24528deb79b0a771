package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/chunker"
	"github.com/rcliao/agent-context/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Chunk a document and store each piece",
		Long: "Split a markdown or text file into token-sized chunks on heading and paragraph " +
			"boundaries and store them as <prefix>#<n>, embedding them concurrently when an embedder is configured.",
		Args: cobra.ExactArgs(1),
		Run:  runIngest,
	}

	cmd.Flags().String("prefix", "", "Key prefix (default: file name)")
	cmd.Flags().StringP("scope", "s", "", "Scope tag")
	cmd.Flags().Int("target-tokens", 0, "Preferred chunk size in tokens")
	cmd.Flags().Int("max-tokens", 0, "Hard chunk size limit in tokens")

	memCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	path := args[0]
	prefix, _ := cmd.Flags().GetString("prefix")
	scope, _ := cmd.Flags().GetString("scope")
	target, _ := cmd.Flags().GetInt("target-tokens")
	limit, _ := cmd.Flags().GetInt("max-tokens")

	data, err := os.ReadFile(path)
	if err != nil {
		exitErr("read", err)
	}
	if prefix == "" {
		prefix = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	counter, err := cfg.Counter()
	if err != nil {
		exitErr("ingest", err)
	}

	mem, backend := openMemory(cmd.Context())
	defer backend.Close()

	results, err := mem.Ingest(cmd.Context(), prefix, string(data), memory.IngestOptions{
		Chunking: chunker.Options{TargetTokens: target, MaxTokens: limit, Counter: counter},
		Meta:     map[string]any{"path": path},
		Scope:    scope,
	})
	if err != nil {
		exitErr("ingest", err)
	}
	printJSON(cmd.OutOrStdout(), results)
}
