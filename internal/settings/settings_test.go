// ABOUTME: Tests for the persistent settings store
// ABOUTME: Covers defaults, independent slots, sealing at rest and reload from disk

package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/store"
)

func validConfig() ConnectionConfig {
	return ConnectionConfig{
		URL:       "bolt://graph.example.com:7687",
		Username:  "neo4j",
		Password:  "s3cret",
		IndexName: "entity",
	}
}

func TestLoad_Defaults(t *testing.T) {
	s := New(store.NewMockStore(), nil, nil)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ConnectionConfig{Username: "neo4j", IndexName: "entity"}, snap.Connection)
	assert.Nil(t, snap.Agent)
	assert.Empty(t, snap.Mode)
	assert.False(t, snap.Connection.Saved())
}

func TestLoad_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMockStore(), nil, nil)
	require.NoError(t, s.SaveConfig(ctx, validConfig()))
	require.NoError(t, s.SaveAgent(ctx, "m", AgentIdentity{Address: "agent1q", Name: "m"}))

	first, err := s.Load(ctx)
	require.NoError(t, err)
	second, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSaveConfig_RequiresURLAndPassword(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMockStore()
	s := New(backend, nil, nil)

	cc := validConfig()
	cc.Password = ""
	assert.ErrorIs(t, s.SaveConfig(ctx, cc), ErrIncompleteConfig)

	cc = validConfig()
	cc.URL = "   "
	assert.ErrorIs(t, s.SaveConfig(ctx, cc), ErrIncompleteConfig)

	assert.Zero(t, backend.Puts())
}

func TestSlotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMockStore()
	s := New(backend, nil, nil)

	require.NoError(t, s.SaveMode(ctx, "GraphRag Global Assistant"))

	fresh := New(backend, nil, nil)
	snap, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GraphRag Global Assistant", snap.Mode)
	assert.Nil(t, snap.Agent)
	assert.Equal(t, DefaultConnection(), snap.Connection)
}

func TestSaveAgent_CachesPerMode(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMockStore(), nil, nil)

	global := AgentIdentity{Address: "agent1qglobal", Name: "GraphRag Global Assistant"}
	entity := AgentIdentity{Address: "agent1qentity", Name: "GraphRag Entity-Focused Assistant"}
	require.NoError(t, s.SaveAgent(ctx, global.Name, global))
	require.NoError(t, s.SaveAgent(ctx, entity.Name, entity))

	assert.Equal(t, &entity, s.Agent())

	got, ok, err := s.CachedAgent(ctx, global.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, global, got)

	_, ok, err = s.CachedAgent(ctx, "unknown mode")
	require.NoError(t, err)
	assert.False(t, ok)

	modes, err := s.CachedModes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{global.Name, entity.Name}, modes)
}

func TestAgent_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMockStore(), nil, nil)
	require.NoError(t, s.SaveAgent(ctx, "", AgentIdentity{Address: "a", Name: "n"}))

	a := s.Agent()
	a.Address = "mutated"
	assert.Equal(t, "a", s.Agent().Address)
}

func TestSave_BackendFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMockStore()
	s := New(backend, nil, nil)
	backend.FailPut = errors.New("disk full")

	require.Error(t, s.SaveMode(ctx, "m"))
	require.Error(t, s.SaveConfig(ctx, validConfig()))
	assert.Empty(t, s.Mode())
	assert.False(t, s.Connection().Saved())
}

func TestSaveAgent_CacheFailureKeepsPreviousAgent(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMockStore()
	s := New(backend, nil, nil)

	prev := AgentIdentity{Address: "agent1qprev", Name: "prev"}
	require.NoError(t, s.SaveAgent(ctx, "", prev))

	backend.FailPut = errors.New("disk full")
	backend.FailPutPrefix = "agent:"
	next := AgentIdentity{Address: "agent1qnext", Name: "next"}
	require.Error(t, s.SaveAgent(ctx, "m", next))

	assert.Equal(t, &prev, s.Agent())
	raw, err := backend.Get(ctx, KeyAgent)
	require.NoError(t, err)
	assert.Contains(t, raw, prev.Address)
}

func TestLoad_UndecodableSlotIsIgnored(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMockStore()
	require.NoError(t, backend.Put(ctx, KeyConnection, "{not json"))
	require.NoError(t, backend.Put(ctx, KeyAgent, "[]"))

	snap, err := New(backend, nil, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultConnection(), snap.Connection)
	assert.Nil(t, snap.Agent)
}

func TestSealing_PasswordNotStoredInPlaintext(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMockStore()
	s := New(backend, NewSealer([32]byte{9}), nil)

	require.NoError(t, s.SaveConfig(ctx, validConfig()))

	raw, err := backend.Get(ctx, KeyConnection)
	require.NoError(t, err)
	assert.NotContains(t, raw, "s3cret")
	assert.Contains(t, raw, sealedPrefix)

	// The in-memory copy keeps the plaintext for dispatch.
	assert.Equal(t, "s3cret", s.Connection().Password)
}

func TestSealing_SealedValueWithoutKey(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMockStore()
	require.NoError(t, New(backend, NewSealer([32]byte{9}), nil).SaveConfig(ctx, validConfig()))

	_, err := New(backend, nil, nil).Load(ctx)
	assert.ErrorIs(t, err, ErrUnsealable)
}

func TestOpen_ReloadFromDisk(t *testing.T) {
	ctx := context.Background()
	cfg := config.StorageConfig{
		Path:   filepath.Join(t.TempDir(), "settings.db"),
		Driver: store.DriverModernc,
	}

	s, err := Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveConfig(ctx, validConfig()))
	require.NoError(t, s.SaveAgent(ctx, "GraphRag Global Assistant", AgentIdentity{Address: "agent1q", Name: "GraphRag Global Assistant"}))
	require.NoError(t, s.SaveMode(ctx, "GraphRag Global Assistant"))
	require.NoError(t, s.Close())

	assert.FileExists(t, filepath.Join(filepath.Dir(cfg.Path), "settings.key"))

	s, err = Open(cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, validConfig(), snap.Connection)
	require.NotNil(t, snap.Agent)
	assert.Equal(t, "agent1q", snap.Agent.Address)
	assert.Equal(t, "GraphRag Global Assistant", snap.Mode)
}
