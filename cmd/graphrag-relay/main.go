// ABOUTME: Entry point for graphrag-relay, a local stand-in for the agent-execution service
// ABOUTME: Serves agent search, query submission and result polling over HTTP or a tailnet

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/graphrag-assistant/internal/agentverse"
	"github.com/2389/graphrag-assistant/internal/auth"
	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/logging"
	"github.com/2389/graphrag-assistant/internal/relay"
)

// Version is set at build time.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "graphrag-relay",
		Short:         "Local stand-in for the GraphRag agent-execution service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Relay.Addr = addr
			}
			return runServe(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides relay.addr)")

	health := &cobra.Command{
		Use:   "health",
		Short: "Check that a relay is answering",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runHealth(cmd.Context(), cfg.Service.BaseURL, cmd.OutOrStdout())
		},
	}

	root.AddCommand(serve, health)
	root.RunE = serve.RunE
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closeLog()

	agents := relay.AgentsFromConfig(cfg.Relay.Agents)
	if len(agents) == 0 {
		agents = defaultAgents(cfg.Modes)
	}

	opts := relay.Options{
		Agents:      agents,
		AnswerDelay: cfg.Relay.AnswerDelay,
		SearchPath:  cfg.Service.SearchPath,
		SubmitPath:  cfg.Service.SubmitPath,
		ResultPath:  cfg.Service.ResultPath,
		Logger:      logger,
	}
	if cfg.Relay.AuthSecret != "" {
		opts.Verifier = auth.NewJWTVerifier([]byte(cfg.Relay.AuthSecret))
	}

	srv := relay.New(opts)
	defer srv.Close()

	var (
		ln      net.Listener
		cleanup = func() {}
	)
	if cfg.Relay.Tailscale.Enabled {
		ln, cleanup, err = listenTailscale(ctx, cfg.Relay.Tailscale, logger)
	} else {
		ln, err = net.Listen("tcp", cfg.Relay.Addr)
	}
	if err != nil {
		return err
	}
	defer cleanup()

	printStartup(out, cfg, ln.Addr().String(), agents)
	logger.Info("starting graphrag-relay", "addr", ln.Addr().String(), "agents", len(agents), "answer_delay", cfg.Relay.AnswerDelay)

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// defaultAgents registers one agent per configured mode so the client's
// mode lookups resolve without any relay configuration.
func defaultAgents(modes []string) []agentverse.Agent {
	agents := make([]agentverse.Agent, 0, len(modes))
	for i, m := range modes {
		agents = append(agents, agentverse.Agent{
			Address: fmt.Sprintf("agent1qlocalrelay%02d", i+1),
			Name:    m,
		})
	}
	return agents
}

func printStartup(w io.Writer, cfg *config.Config, addr string, agents []agentverse.Agent) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	gray.Fprintf(w, "graphrag-relay %s\n\n", version)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Listening: %s\n", addr)
	if cfg.Relay.Tailscale.Enabled {
		green.Fprint(w, "    ▶ ")
		fmt.Fprint(w, "Tailscale: ")
		cyan.Fprintln(w, cfg.Relay.Tailscale.Hostname)
	}
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Delay:     %s\n", cfg.Relay.AnswerDelay)
	for _, a := range agents {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "Agent:     %s ", a.Name)
		gray.Fprintf(w, "(%s)\n", a.Address)
	}
	fmt.Fprintln(w)
}

func runHealth(ctx context.Context, baseURL string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay unhealthy: status %d", resp.StatusCode)
	}
	color.New(color.FgGreen).Fprintf(out, "relay at %s is healthy\n", baseURL)
	return nil
}
