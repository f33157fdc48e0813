// Command agentbridge is a terminal front end for the bridge: it
// launches the agent, opens a session in the working directory, and
// streams turns to stdout. Ctrl-C cancels the in-flight turn instead
// of killing the agent; a second Ctrl-C exits.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dstanek/agentbridge"
	"github.com/dstanek/agentbridge/acp"
	"github.com/dstanek/agentbridge/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentbridge:", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	prompt      string
	cwd         string
	model       string
	binary      string
	metricsAddr string
}

func rootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:   "agentbridge",
		Short: "Bridge a coding agent subprocess into your terminal",
		Long: "agentbridge launches a coding agent as a subprocess, speaks its\n" +
			"stdio protocol, and streams the conversation to the terminal.\n" +
			"Without --prompt it runs an interactive loop.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.cwd, "cwd", "", "session working directory (default: current directory)")
	cmd.PersistentFlags().StringVar(&flags.binary, "binary", "", "agent executable, overriding configuration")
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "run one turn and exit")
	cmd.Flags().StringVar(&flags.model, "model", "", "model id for the turn")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	cmd.AddCommand(modelsCmd(&flags))
	return cmd
}

// setup builds an engine from config plus flag overrides and opens a
// session.
func setup(ctx context.Context, flags cliFlags) (*acp.Engine, agentbridge.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, agentbridge.Session{}, err
	}
	log := cfg.Logger()
	slog.SetDefault(log)

	opts := cfg.EngineOptions()
	opts = append(opts, acp.WithLogger(log))
	if flags.binary != "" {
		opts = append(opts, acp.WithBinary(flags.binary))
	}

	engine := acp.New(opts...)
	if err := engine.Start(ctx); err != nil {
		_ = engine.Close()
		return nil, agentbridge.Session{}, err
	}

	cwd := flags.cwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			_ = engine.Close()
			return nil, agentbridge.Session{}, err
		}
	}
	sess, err := engine.CreateSession(ctx, cwd)
	if err != nil {
		_ = engine.Close()
		return nil, agentbridge.Session{}, err
	}
	return engine, sess, nil
}

func run(ctx context.Context, flags cliFlags) error {
	engine, _, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer engine.Close()

	if flags.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(flags.metricsAddr, mux); err != nil {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	// First interrupt cancels the turn, second one exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ncancelling turn (Ctrl-C again to exit)")
		engine.Cancel()
		<-sigCh
		_ = engine.Close()
		os.Exit(130)
	}()

	if flags.prompt != "" {
		return runTurn(ctx, engine, flags.model, flags.prompt)
	}
	return repl(ctx, engine, flags.model)
}

func repl(ctx context.Context, engine *acp.Engine, model string) error {
	if info := engine.AgentInfo(); info != nil {
		fmt.Printf("connected to %s %s\n", info.Name, info.Version)
	}
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			fmt.Println()
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := runTurn(ctx, engine, model, line); err != nil {
			if !agentbridge.Recoverable(err) {
				return err
			}
			fmt.Fprintln(os.Stderr, "turn failed:", err)
		}
	}
}

func runTurn(ctx context.Context, engine *acp.Engine, model, text string) error {
	stop, err := engine.Prompt(ctx, acp.PromptRequest{
		Text:  text,
		Model: model,
		OnText: func(s string) {
			fmt.Print(s)
		},
		OnUpdate: func(u agentbridge.Update) {
			switch u.Kind {
			case agentbridge.UpdateToolCall:
				if u.Tool != nil {
					fmt.Printf("\n[tool] %s (%s)\n", u.Tool.Title, u.Tool.Status)
				}
			case agentbridge.UpdateToolCallUpdate:
				if u.Tool != nil && u.Tool.Status != "" {
					fmt.Printf("[tool] %s: %s\n", u.Tool.ID, u.Tool.Status)
				}
			case agentbridge.UpdatePlan:
				for _, e := range u.Plan {
					fmt.Printf("[plan] %-11s %s\n", e.Status, e.Content)
				}
			}
		},
	})
	if err != nil {
		return err
	}
	fmt.Println()
	if stop != "" && stop != "end_turn" {
		fmt.Printf("(stopped: %s)\n", stop)
	}
	return nil
}

func modelsCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the agent offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, sess, err := setup(cmd.Context(), *flags)
			if err != nil {
				return err
			}
			defer engine.Close()

			for _, m := range sess.Models {
				marker := " "
				if m.ID == sess.CurrentModelID {
					marker = "*"
				}
				line := fmt.Sprintf("%s %-24s %s", marker, m.ID, m.Name)
				if m.UsageMultiplier != "" {
					line += fmt.Sprintf(" (usage %s)", m.UsageMultiplier)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
