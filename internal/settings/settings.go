// ABOUTME: Persistent settings store for connection config, selected agent and mode
// ABOUTME: Three independent slots over a store.Backend with an in-memory copy for fast reads

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/store"
)

// Slot keys in the backend.
const (
	KeyConnection    = "connection_config"
	KeyAgent         = "selected_agent"
	KeyMode          = "selected_mode"
	agentCachePrefix = "agent:"
)

// Defaults applied when the connection slot is absent.
const (
	DefaultUsername  = "neo4j"
	DefaultIndexName = "entity"
)

// ErrIncompleteConfig is returned by SaveConfig when the URL or password is empty.
var ErrIncompleteConfig = errors.New("connection config requires url and password")

// ConnectionConfig holds the graph database parameters forwarded with every query.
// The JSON field names match the db_config object the remote service expects.
type ConnectionConfig struct {
	URL       string `json:"url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	IndexName string `json:"index_name"`
}

// DefaultConnection returns the connection config used when nothing is stored.
func DefaultConnection() ConnectionConfig {
	return ConnectionConfig{Username: DefaultUsername, IndexName: DefaultIndexName}
}

// Saved reports whether the config carries the fields SaveConfig requires.
func (c ConnectionConfig) Saved() bool {
	return strings.TrimSpace(c.URL) != "" && c.Password != ""
}

// AgentIdentity names a remote agent.
type AgentIdentity struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Snapshot is the full set of persisted settings.
type Snapshot struct {
	Connection ConnectionConfig
	Agent      *AgentIdentity
	Mode       string
}

// Store reads and writes settings slots. Each Save overwrites one slot
// immediately; there is no transaction across slots.
type Store struct {
	backend store.Backend
	sealer  *Sealer
	logger  *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a Store over backend. A nil sealer stores the password in plaintext.
func New(backend store.Backend, sealer *Sealer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		sealer:  sealer,
		logger:  logger.With("component", "settings"),
		snap:    Snapshot{Connection: DefaultConnection()},
	}
}

// Open opens the SQLite backend described by cfg and, unless plaintext secrets
// are configured, the sealing key stored next to the database.
func Open(cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	backend, err := store.OpenSQLiteStore(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening settings backend: %w", err)
	}

	var sealer *Sealer
	if !cfg.PlaintextSecrets {
		sealer, err = LoadOrCreateKey(filepath.Join(filepath.Dir(cfg.Path), "settings.key"))
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("loading sealing key: %w", err)
		}
	}

	return New(backend, sealer, logger), nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Load reads all three slots. Absent slots yield defaults. A slot whose
// contents cannot be decoded is treated as absent and logged.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Connection: DefaultConnection()}

	raw, err := s.get(ctx, KeyConnection)
	if err != nil {
		return Snapshot{}, err
	}
	if raw != "" {
		var cc ConnectionConfig
		if err := json.Unmarshal([]byte(raw), &cc); err != nil {
			s.logger.Warn("ignoring undecodable connection config", "error", err)
		} else {
			cc.Password, err = s.openSecret(cc.Password)
			if err != nil {
				return Snapshot{}, fmt.Errorf("opening stored password: %w", err)
			}
			snap.Connection = cc
		}
	}

	raw, err = s.get(ctx, KeyAgent)
	if err != nil {
		return Snapshot{}, err
	}
	if raw != "" {
		var a AgentIdentity
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			s.logger.Warn("ignoring undecodable selected agent", "error", err)
		} else {
			snap.Agent = &a
		}
	}

	snap.Mode, err = s.get(ctx, KeyMode)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	return copySnapshot(snap), nil
}

// SaveConfig overwrites the connection slot. The URL and password must be non-empty.
func (s *Store) SaveConfig(ctx context.Context, cc ConnectionConfig) error {
	if !cc.Saved() {
		return ErrIncompleteConfig
	}

	stored := cc
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(cc.Password)
		if err != nil {
			return fmt.Errorf("sealing password: %w", err)
		}
		stored.Password = sealed
	}

	if err := s.putJSON(ctx, KeyConnection, stored); err != nil {
		return err
	}

	s.mu.Lock()
	s.snap.Connection = cc
	s.mu.Unlock()

	s.logger.Debug("saved connection config", "url", cc.URL, "index", cc.IndexName)
	return nil
}

// SaveAgent caches the identity for mode, then overwrites the selected-agent
// slot. The in-memory copy only changes once both writes succeed.
func (s *Store) SaveAgent(ctx context.Context, mode string, a AgentIdentity) error {
	if mode != "" {
		if err := s.putJSON(ctx, agentCachePrefix+mode, a); err != nil {
			return err
		}
	}
	if err := s.putJSON(ctx, KeyAgent, a); err != nil {
		return err
	}

	s.mu.Lock()
	s.snap.Agent = &a
	s.mu.Unlock()

	s.logger.Debug("saved selected agent", "mode", mode, "agent", a.Name, "address", a.Address)
	return nil
}

// SaveMode overwrites the selected-mode slot.
func (s *Store) SaveMode(ctx context.Context, mode string) error {
	if err := s.backend.Put(ctx, KeyMode, mode); err != nil {
		return fmt.Errorf("writing %s: %w", KeyMode, err)
	}

	s.mu.Lock()
	s.snap.Mode = mode
	s.mu.Unlock()
	return nil
}

// CachedAgent returns the identity last resolved for mode, if any.
func (s *Store) CachedAgent(ctx context.Context, mode string) (AgentIdentity, bool, error) {
	raw, err := s.get(ctx, agentCachePrefix+mode)
	if err != nil || raw == "" {
		return AgentIdentity{}, false, err
	}
	var a AgentIdentity
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		s.logger.Warn("ignoring undecodable cached agent", "mode", mode, "error", err)
		return AgentIdentity{}, false, nil
	}
	return a, true, nil
}

// CachedModes lists the modes that have a cached agent.
func (s *Store) CachedModes(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Keys(ctx, agentCachePrefix)
	if err != nil {
		return nil, fmt.Errorf("listing cached agents: %w", err)
	}
	modes := make([]string, 0, len(keys))
	for _, k := range keys {
		modes = append(modes, strings.TrimPrefix(k, agentCachePrefix))
	}
	return modes, nil
}

// Snapshot returns the in-memory copy of the settings without I/O.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySnapshot(s.snap)
}

// Connection returns the in-memory connection config.
func (s *Store) Connection() ConnectionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Connection
}

// Agent returns the in-memory selected agent, or nil.
func (s *Store) Agent() *AgentIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.Agent == nil {
		return nil
	}
	a := *s.snap.Agent
	return &a
}

// Mode returns the in-memory selected mode.
func (s *Store) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Mode
}

// get returns "" for a missing key.
func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.backend.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.backend.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *Store) openSecret(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if s.sealer == nil {
		return "", fmt.Errorf("%w: no sealing key configured", ErrUnsealable)
	}
	return s.sealer.Open(v)
}

func copySnapshot(s Snapshot) Snapshot {
	if s.Agent != nil {
		a := *s.Agent
		s.Agent = &a
	}
	return s
}
