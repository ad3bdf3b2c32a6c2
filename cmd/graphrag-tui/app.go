// ABOUTME: Wires config, logging, settings, service client, resolver, conversation and dispatcher
// ABOUTME: Shared by every graphrag-tui subcommand; also restores the agent for a saved mode

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/2389/graphrag-assistant/internal/agentverse"
	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/conversation"
	"github.com/2389/graphrag-assistant/internal/dispatch"
	"github.com/2389/graphrag-assistant/internal/logging"
	"github.com/2389/graphrag-assistant/internal/resolver"
	"github.com/2389/graphrag-assistant/internal/settings"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	settings *settings.Store
	client   *agentverse.Client
	resolver *resolver.Resolver
	state    *conversation.State
	ctrl     *dispatch.Controller

	closers []func() error
}

type appOptions struct {
	Supersede bool
}

// openApp loads the config at path and builds the app from it.
func openApp(ctx context.Context, path string, opts appOptions) (*app, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	a, err := newApp(ctx, cfg, logger, opts)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	a.closers = append(a.closers, closeLog)
	return a, nil
}

// newApp opens the settings store, loads it and starts the dispatcher.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	st, err := settings.Open(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if _, err := st.Load(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	client := agentverse.NewFromConfig(cfg.Service, logger)
	state, rec := conversation.New(logger)

	ctrl := dispatch.New(dispatch.Options{
		Service:      client,
		Settings:     st,
		State:        state,
		Recorder:     rec,
		AttemptLimit: cfg.Polling.AttemptLimit,
		Interval:     cfg.Polling.Interval,
		Supersede:    opts.Supersede,
		Logger:       logger,
	})
	ctrl.Start(ctx)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		settings: st,
		client:   client,
		resolver: resolver.New(client, st, cfg.Modes, logger),
		state:    state,
		ctrl:     ctrl,
	}
	return a, nil
}

func (a *app) close() {
	a.ctrl.Close()
	a.state.Close()
	if err := a.settings.Close(); err != nil {
		a.logger.Warn("closing settings", "error", err)
	}
	for _, c := range a.closers {
		_ = c()
	}
}

// restoreAgent resolves the saved mode when no agent was persisted for it.
// It returns a user-facing message on failure, empty otherwise.
func (a *app) restoreAgent(ctx context.Context) string {
	if a.settings.Agent() != nil {
		return ""
	}
	mode := a.settings.Mode()
	if mode == "" {
		return ""
	}
	if _, err := a.resolver.Resolve(ctx, mode); err != nil {
		return resolver.UserMessage(err, mode)
	}
	return ""
}

// selectMode persists mode and binds the agent found for it.
func (a *app) selectMode(ctx context.Context, mode string) (settings.AgentIdentity, error) {
	return a.resolver.SelectMode(ctx, mode)
}

// lookupMode accepts a 1-based index into the mode list or a mode name,
// matched case-insensitively.
func (a *app) lookupMode(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	modes := a.resolver.Modes()
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(modes) {
			return modes[n-1], true
		}
		return "", false
	}
	for _, m := range modes {
		if strings.EqualFold(m, arg) {
			return m, true
		}
	}
	return "", false
}

// submitBlocker explains why a submission would be rejected, or returns "".
func (a *app) submitBlocker() string {
	switch {
	case a.settings.Agent() == nil:
		return "Select an assistant mode first (/modes, /mode <n>)."
	case a.state.Processing():
		return "Still waiting for the previous answer (/cancel to abandon it)."
	}
	return ""
}
