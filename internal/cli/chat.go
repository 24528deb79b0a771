package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/provider/gemini"
	"github.com/rcliao/agent-context/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat <document.yaml>",
		Short: "Chat with Gemini using a context document",
		Long: "Start a line-based chat seeded from a context document. Each reply is committed " +
			"to the context. Commands: /phase <name>, /tokens, /quit. Requires GEMINI_API_KEY.",
		Args: cobra.ExactArgs(1),
		Run:  runChat,
	}

	cmd.Flags().String("model", "", "Gemini model (default: provider.model from config)")
	cmd.Flags().Bool("stream", false, "Stream replies")
	cmd.Flags().Bool("memory", false, "Bind the configured memory store")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	model, _ := cmd.Flags().GetString("model")
	stream, _ := cmd.Flags().GetBool("stream")
	bind, _ := cmd.Flags().GetBool("memory")

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		exitErr("chat", errors.New("GEMINI_API_KEY is not set"))
	}
	if model == "" {
		model = cfg.Provider.Model
	}

	cx, closeFn := buildContext(cmd.Context(), args[0], bind)
	defer closeFn()

	p, err := gemini.New(cmd.Context(), apiKey,
		gemini.WithModel(model),
		gemini.WithLogger(logger),
		gemini.WithMetrics(mtx))
	if err != nil {
		exitErr("chat", err)
	}
	logger.Info("chat started", zap.String("model", p.Model()), zap.String("phase", cx.CurrentPhase()))

	sess := session.New(cx, p, session.WithLogger(logger))
	if err := chatLoop(cmd.Context(), sess, cmd.InOrStdin(), cmd.OutOrStdout(), stream); err != nil {
		exitErr("chat", err)
	}
}

// chatLoop reads one message per line until EOF, /quit, or a terminal
// phase is reached.
func chatLoop(ctx context.Context, sess *session.ChatSession, in io.Reader, out io.Writer, stream bool) error {
	cx := sess.Context()
	sc := bufio.NewScanner(in)
	for {
		if sess.IsPhaseComplete() {
			fmt.Fprintf(out, "[phase %q complete]\n", cx.CurrentPhase())
			return nil
		}
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/tokens":
			n, err := cx.TokenCount(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "[%d tokens]\n", n)
			continue
		case strings.HasPrefix(line, "/phase "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/phase "))
			if err := cx.AdvancePhase(target); err != nil {
				fmt.Fprintf(out, "[%v]\n", err)
			} else {
				fmt.Fprintf(out, "[phase %s]\n", target)
			}
			continue
		}

		if stream {
			if err := streamReply(ctx, sess, line, out); err != nil {
				return err
			}
			continue
		}
		resp, err := sess.Send(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Text)
		for _, tc := range resp.ToolCalls {
			fmt.Fprintf(out, "[tool call %s %v]\n", tc.Name, tc.Args)
		}
	}
}

func streamReply(ctx context.Context, sess *session.ChatSession, line string, out io.Writer) error {
	r, err := sess.Stream(ctx, line)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprint(out, c.Delta)
	}
}
