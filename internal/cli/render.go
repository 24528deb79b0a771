package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/compose"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/render"
	"github.com/rcliao/agent-context/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "render <document.yaml|->",
		Short: "Render a context document",
		Long:  "Render a YAML context document for a target format, applying phases and the token budget.",
		Args:  cobra.ExactArgs(1),
		Run:   runRender,
	}

	cmd.Flags().StringP("target", "t", "text", "Target: text, openai, anthropic, gemini")
	cmd.Flags().StringP("phase", "p", "", "Render this phase instead of the document state's")
	cmd.Flags().IntP("max-tokens", "m", 0, "Override the budget's max tokens")
	cmd.Flags().Bool("memory", false, "Bind the configured memory store")

	RootCmd.AddCommand(cmd)
}

type renderOutput struct {
	Format     render.Format  `json:"format"`
	Phase      string         `json:"phase,omitempty"`
	Tokens     int            `json:"tokens"`
	OverBudget bool           `json:"over_budget"`
	Evicted    map[string]int `json:"evicted,omitempty"`
	Payload    render.Payload `json:"payload"`
}

// buildContext loads a document and, when it reads memory or bind is set,
// opens the store. The returned close func is never nil.
func buildContext(ctx context.Context, path string, bind bool) (*compose.Context, func()) {
	doc, err := loadDocument(path)
	if err != nil {
		exitErr("load document", err)
	}
	var (
		mem     *memory.Memory
		backend store.Backend
	)
	closeFn := func() {}
	if bind || doc.needsMemory(cfg) {
		mem, backend = openMemory(ctx)
		closeFn = func() { backend.Close() }
	}
	cx, err := doc.Build(cfg, mem, logger, mtx)
	if err != nil {
		closeFn()
		exitErr("build context", err)
	}
	return cx, closeFn
}

func runRender(cmd *cobra.Command, args []string) {
	target, _ := cmd.Flags().GetString("target")
	phaseName, _ := cmd.Flags().GetString("phase")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	bind, _ := cmd.Flags().GetBool("memory")

	format, err := render.ParseFormat(target)
	if err != nil {
		exitErr("render", err)
	}

	cx, closeFn := buildContext(cmd.Context(), args[0], bind)
	defer closeFn()

	res, err := cx.Render(cmd.Context(), format,
		compose.WithPhase(phaseName),
		compose.WithMaxTokens(maxTokens))
	if err != nil {
		exitErr("render", err)
	}

	out := cmd.OutOrStdout()
	if textOutput() {
		if tp, ok := res.Payload.(render.TextPayload); ok {
			fmt.Fprintln(out, tp.Text)
			return
		}
	}
	printJSON(out, renderOutput{
		Format:     format,
		Phase:      res.Phase,
		Tokens:     res.Tokens,
		OverBudget: res.OverBudget,
		Evicted:    evictedNames(res.Evicted),
		Payload:    res.Payload,
	})
}

func evictedNames(m map[model.SectionType]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for t, n := range m {
		out[t.Name()] = n
	}
	return out
}
