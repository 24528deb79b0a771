package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/prompt"
	"github.com/rcliao/agent-context/internal/render"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Inspect and render versioned prompt templates",
}

func init() {
	list := &cobra.Command{
		Use:   "list",
		Short: "List prompts in the registry",
		Args:  cobra.NoArgs,
		Run:   runPromptList,
	}

	versions := &cobra.Command{
		Use:   "versions <name>",
		Short: "List a prompt's versions, newest first",
		Args:  cobra.ExactArgs(1),
		Run:   runPromptVersions,
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a prompt's metadata, variables and sections",
		Args:  cobra.ExactArgs(1),
		Run:   runPromptShow,
	}
	show.Flags().StringP("version", "V", prompt.Latest, "Prompt version")

	rend := &cobra.Command{
		Use:   "render <name>",
		Short: "Render a prompt with variables",
		Long: "Render a prompt. With --target the output is added to a fresh context " +
			"and rendered for that provider format.",
		Args: cobra.ExactArgs(1),
		Run:  runPromptRender,
	}
	rend.Flags().StringP("version", "V", prompt.Latest, "Prompt version")
	rend.Flags().StringToString("var", nil, "Variables (key=value)")
	rend.Flags().StringSlice("section", nil, "Render only these sections")
	rend.Flags().StringP("target", "t", "", "Render through a context for: text, openai, anthropic, gemini")

	diff := &cobra.Command{
		Use:   "diff <name> <from> [to]",
		Short: "Unified diff between two versions (to defaults to latest)",
		Args:  cobra.RangeArgs(2, 3),
		Run:   runPromptDiff,
	}

	promptCmd.AddCommand(list, versions, show, rend, diff)
	RootCmd.AddCommand(promptCmd)
}

func runPromptList(cmd *cobra.Command, args []string) {
	names, err := cfg.PromptRegistry(logger).Names()
	if err != nil {
		exitErr("list prompts", err)
	}
	if textOutput() {
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return
	}
	printJSON(cmd.OutOrStdout(), names)
}

func runPromptVersions(cmd *cobra.Command, args []string) {
	versions, err := cfg.PromptRegistry(logger).Versions(args[0])
	if err != nil {
		exitErr("list versions", err)
	}
	if textOutput() {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(versions, "\n"))
		return
	}
	printJSON(cmd.OutOrStdout(), versions)
}

type promptInfo struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Kind      prompt.Kind       `json:"kind"`
	Meta      prompt.Metadata   `json:"metadata"`
	Variables []prompt.Variable `json:"variables,omitempty"`
	Sections  []string          `json:"sections"`
}

func runPromptShow(cmd *cobra.Command, args []string) {
	version, _ := cmd.Flags().GetString("version")
	p, err := cfg.PromptRegistry(logger).Load(args[0], version)
	if err != nil {
		exitErr("load prompt", err)
	}
	printJSON(cmd.OutOrStdout(), promptInfo{
		Name:      p.Name,
		Version:   p.Version,
		Kind:      p.Kind,
		Meta:      p.Meta,
		Variables: p.Variables,
		Sections:  p.Sections(),
	})
}

func runPromptRender(cmd *cobra.Command, args []string) {
	version, _ := cmd.Flags().GetString("version")
	vars, _ := cmd.Flags().GetStringToString("var")
	sections, _ := cmd.Flags().GetStringSlice("section")
	target, _ := cmd.Flags().GetString("target")

	p, err := cfg.PromptRegistry(logger).Load(args[0], version)
	if err != nil {
		exitErr("load prompt", err)
	}
	out, err := p.Render(parseFilters(vars), sections...)
	if err != nil {
		exitErr("render prompt", err)
	}

	w := cmd.OutOrStdout()
	if target == "" {
		if textOutput() && out.Kind == prompt.Freeform {
			fmt.Fprintln(w, out.Text)
			return
		}
		printJSON(w, out)
		return
	}

	format, err := render.ParseFormat(target)
	if err != nil {
		exitErr("render prompt", err)
	}
	cx, err := cfg.NewContext(logger, mtx)
	if err != nil {
		exitErr("build context", err)
	}
	if err := out.AddTo(cx, model.Instructions); err != nil {
		exitErr("render prompt", err)
	}
	res, err := cx.Render(cmd.Context(), format)
	if err != nil {
		exitErr("render prompt", err)
	}
	if tp, ok := res.Payload.(render.TextPayload); ok && textOutput() {
		fmt.Fprintln(w, tp.Text)
		return
	}
	printJSON(w, renderOutput{
		Format:     format,
		Tokens:     res.Tokens,
		OverBudget: res.OverBudget,
		Evicted:    evictedNames(res.Evicted),
		Payload:    res.Payload,
	})
}

func runPromptDiff(cmd *cobra.Command, args []string) {
	to := prompt.Latest
	if len(args) == 3 {
		to = args[2]
	}
	diff, err := cfg.PromptRegistry(logger).Diff(args[0], args[1], to)
	if err != nil {
		exitErr("diff prompt", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), diff)
}
