// ABOUTME: Maps an assistant mode name to a remote agent via the discovery endpoint
// ABOUTME: Exact name match wins, else first result; success is written through to settings

package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/2389/graphrag-assistant/internal/agentverse"
	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/settings"
)

// Resolution errors
var (
	ErrNotFound  = errors.New("no agent found")
	ErrTransport = errors.New("failed to search for agent")
	ErrBusy      = errors.New("agent resolution already in progress")
)

// Searcher queries the discovery endpoint.
type Searcher interface {
	Search(ctx context.Context, query string) ([]agentverse.Agent, error)
}

// AgentStore is the part of the settings store the resolver writes to.
type AgentStore interface {
	SaveAgent(ctx context.Context, mode string, a settings.AgentIdentity) error
	SaveMode(ctx context.Context, mode string) error
}

// Resolver binds modes to agents. At most one resolution runs at a time.
type Resolver struct {
	searcher Searcher
	store    AgentStore
	modes    []string
	busy     atomic.Bool
	logger   *slog.Logger
}

// New creates a Resolver. An empty modes list uses config.DefaultModes.
func New(searcher Searcher, store AgentStore, modes []string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if len(modes) == 0 {
		modes = config.DefaultModes
	}
	return &Resolver{
		searcher: searcher,
		store:    store,
		modes:    append([]string(nil), modes...),
		logger:   logger.With("component", "resolver"),
	}
}

// Modes lists the assistant modes offered to the user.
func (r *Resolver) Modes() []string {
	return append([]string(nil), r.modes...)
}

// Busy reports whether a resolution is in flight.
func (r *Resolver) Busy() bool {
	return r.busy.Load()
}

// SelectMode persists mode as the selected mode, then resolves it. Nothing
// is written when another resolution is in flight.
func (r *Resolver) SelectMode(ctx context.Context, mode string) (settings.AgentIdentity, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return settings.AgentIdentity{}, ErrBusy
	}
	defer r.busy.Store(false)

	if err := r.store.SaveMode(ctx, mode); err != nil {
		return settings.AgentIdentity{}, fmt.Errorf("saving mode: %w", err)
	}
	return r.resolve(ctx, mode)
}

// Resolve finds the agent for mode and saves it. The store is not touched
// unless an agent is found.
func (r *Resolver) Resolve(ctx context.Context, mode string) (settings.AgentIdentity, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return settings.AgentIdentity{}, ErrBusy
	}
	defer r.busy.Store(false)

	return r.resolve(ctx, mode)
}

// resolve does the work of Resolve. The caller holds the busy flag.
func (r *Resolver) resolve(ctx context.Context, mode string) (settings.AgentIdentity, error) {
	r.logger.Debug("resolving agent", "mode", mode)

	agents, err := r.searcher.Search(ctx, mode)
	if err != nil {
		r.logger.Warn("agent search failed", "mode", mode, "error", err)
		return settings.AgentIdentity{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	picked, ok := pick(agents, mode)
	if !ok {
		return settings.AgentIdentity{}, fmt.Errorf("%w for %s", ErrNotFound, mode)
	}
	if picked.Name != mode {
		r.logger.Warn("no exact agent name match, using first result",
			"mode", mode,
			"agent", picked.Name,
			"candidates", len(agents))
	}

	identity := settings.AgentIdentity{Address: picked.Address, Name: picked.Name}
	if err := r.store.SaveAgent(ctx, mode, identity); err != nil {
		return settings.AgentIdentity{}, fmt.Errorf("saving agent: %w", err)
	}

	r.logger.Info("agent resolved", "mode", mode, "agent", identity.Name, "address", identity.Address)
	return identity, nil
}

// pick prefers an exact name match and falls back to the first entry.
func pick(agents []agentverse.Agent, mode string) (agentverse.Agent, bool) {
	for _, a := range agents {
		if a.Name == mode {
			return a, true
		}
	}
	if len(agents) == 0 {
		return agentverse.Agent{}, false
	}
	return agents[0], true
}

// UserMessage converts a resolution error into the text shown to the user.
func UserMessage(err error, mode string) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "No agent found for " + mode
	case errors.Is(err, ErrTransport):
		return "Failed to search for agent"
	case errors.Is(err, ErrBusy):
		return "Agent search already in progress"
	default:
		return "Error searching for agent"
	}
}
