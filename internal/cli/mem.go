package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var memCmd = &cobra.Command{
	Use:   "mem",
	Short: "Manage the memory store",
}

func init() {
	RootCmd.AddCommand(memCmd)
}

// parseMeta decodes a JSON object flag value.
func parseMeta(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil, fmt.Errorf("--meta must be a JSON object: %w", err)
	}
	return meta, nil
}

// parseFilters turns key=value pairs into metadata filters. Values that
// parse as JSON scalars keep their type, so n=3 matches the number 3.
func parseFilters(pairs map[string]string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]any, len(pairs))
	for k, v := range pairs {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			switch decoded.(type) {
			case float64, bool:
				out[k] = decoded
				continue
			}
		}
		out[k] = v
	}
	return out
}
