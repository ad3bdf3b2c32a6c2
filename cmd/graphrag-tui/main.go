// ABOUTME: Entry point for graphrag-tui, a terminal client for GraphRag assistants
// ABOUTME: Cobra command tree: chat (default), ask, modes, use, settings, configure

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/resolver"
)

// Version is set at build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		supersede  bool
	)

	// withApp builds the app for one command run and tears it down after.
	withApp := func(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath, appOptions{Supersede: supersede})
			if err != nil {
				return err
			}
			defer a.close()
			return fn(cmd.Context(), cmd, a, args)
		}
	}

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the selected assistant",
		Long: `Chat with the selected assistant interactively.

Examples:
  graphrag-tui                       # Interactive chat
  graphrag-tui chat --supersede      # A new question cancels the one in progress
  graphrag-tui ask "Who founded Acme?"`,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			if err := runChat(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nGoodbye!")
			return nil
		}),
	}

	root := &cobra.Command{
		Use:           "graphrag-tui",
		Short:         "Terminal client for GraphRag knowledge-graph assistants",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          chat.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().BoolVar(&supersede, "supersede", false, "let a new question cancel the one in progress")

	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			return runAsk(ctx, a, strings.Join(args, " "), cmd.OutOrStdout())
		}),
	}

	modes := &cobra.Command{
		Use:   "modes",
		Short: "List assistant modes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			printModes(ctx, a, cmd.OutOrStdout())
			return nil
		}),
	}

	use := &cobra.Command{
		Use:   "use <n|mode>",
		Short: "Select an assistant mode and find its agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			arg := strings.Join(args, " ")
			mode, ok := a.lookupMode(arg)
			if !ok {
				return fmt.Errorf("unknown mode %q", arg)
			}
			agent, err := a.selectMode(ctx, mode)
			if err != nil {
				return errors.New(resolver.UserMessage(err, mode))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Now using %s (%s)\n", agent.Name, agent.Address)
			return nil
		}),
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show saved mode, agent and connection",
		Args:  cobra.NoArgs,
		RunE: withApp(func(_ context.Context, cmd *cobra.Command, a *app, _ []string) error {
			printStatus(a, cmd.OutOrStdout())
			return nil
		}),
	}

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Edit the database connection and assistant mode",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			return configure(ctx, a, cmd.OutOrStdout())
		}),
	}

	root.AddCommand(chat, ask, modes, use, settingsCmd, configureCmd)
	return root
}
