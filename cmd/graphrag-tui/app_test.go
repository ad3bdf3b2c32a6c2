// ABOUTME: End-to-end tests wiring the app against an in-process relay
// ABOUTME: Covers mode selection, persisted settings, ask, chat commands and restore on restart

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/graphrag-assistant/internal/agentverse"
	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/relay"
	"github.com/2389/graphrag-assistant/internal/settings"
)

const globalMode = "GraphRag Global Assistant"

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type testEnv struct {
	cfg    *config.Config
	relay  *httptest.Server
	logger *slog.Logger
}

func newTestEnv(t *testing.T, delay time.Duration) *testEnv {
	t.Helper()
	withoutColor(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := relay.New(relay.Options{
		Agents: []agentverse.Agent{
			{Address: "agent1qlocal", Name: "GraphRag Entity-Focused Assistant"},
			{Address: "agent1qglobal", Name: globalMode},
		},
		AnswerDelay: delay,
		Logger:      logger,
	})
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.Service.BaseURL = ts.URL
	cfg.Storage.Path = filepath.Join(t.TempDir(), "settings.db")
	cfg.Polling.Interval = 10 * time.Millisecond
	cfg.Polling.AttemptLimit = 100

	return &testEnv{cfg: cfg, relay: ts, logger: logger}
}

func (e *testEnv) open(t *testing.T) *app {
	t.Helper()
	a, err := newApp(context.Background(), e.cfg, e.logger, appOptions{})
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func saveTestConnection(t *testing.T, a *app) {
	t.Helper()
	require.NoError(t, a.settings.SaveConfig(context.Background(), settings.ConnectionConfig{
		URL:       "bolt://db:7687",
		Username:  "neo4j",
		Password:  "pw",
		IndexName: "entity",
	}))
}

func TestAsk_EndToEnd(t *testing.T) {
	env := newTestEnv(t, 20*time.Millisecond)
	a := env.open(t)
	ctx := context.Background()

	agent, err := a.selectMode(ctx, globalMode)
	require.NoError(t, err)
	assert.Equal(t, "agent1qglobal", agent.Address)
	saveTestConnection(t, a)

	var out bytes.Buffer
	require.NoError(t, runAsk(ctx, a, "What connects Acme and Globex?", &out))
	assert.Contains(t, out.String(), "What connects Acme and Globex?")
	assert.Contains(t, out.String(), "bolt://db:7687")

	snap := a.state.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, globalMode, snap.Messages[1].AgentLabel)

	sess, ok := a.ctrl.LastSession()
	require.True(t, ok)
	assert.Equal(t, "succeeded", sess.Status.String())
}

func TestAsk_TimesOut(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	env.cfg.Polling.AttemptLimit = 3
	a := env.open(t)
	ctx := context.Background()

	_, err := a.selectMode(ctx, globalMode)
	require.NoError(t, err)

	err = runAsk(ctx, a, "anything", io.Discard)
	require.Error(t, err)
	assert.Equal(t, "Response timed out. Please try again.", err.Error())
}

func TestAsk_NoAgentSelected(t *testing.T) {
	env := newTestEnv(t, 0)
	a := env.open(t)

	err := runAsk(context.Background(), a, "hello", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Select an assistant mode")
	assert.Equal(t, 0, a.state.Len())
}

func TestSettingsSurviveRestart(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	first, err := newApp(ctx, env.cfg, env.logger, appOptions{})
	require.NoError(t, err)
	_, err = first.selectMode(ctx, globalMode)
	require.NoError(t, err)
	saveTestConnection(t, first)
	first.close()

	second := env.open(t)
	snap := second.settings.Snapshot()
	assert.Equal(t, globalMode, snap.Mode)
	require.NotNil(t, snap.Agent)
	assert.Equal(t, "agent1qglobal", snap.Agent.Address)
	assert.Equal(t, "pw", snap.Connection.Password)
}

func TestRestoreAgent_ResolvesSavedMode(t *testing.T) {
	env := newTestEnv(t, 0)
	a := env.open(t)
	ctx := context.Background()

	require.NoError(t, a.settings.SaveMode(ctx, globalMode))
	require.Nil(t, a.settings.Agent())

	assert.Empty(t, a.restoreAgent(ctx))
	require.NotNil(t, a.settings.Agent())
	assert.Equal(t, "agent1qglobal", a.settings.Agent().Address)
}

func TestRestoreAgent_ReportsMiss(t *testing.T) {
	env := newTestEnv(t, 0)
	a := env.open(t)
	ctx := context.Background()

	require.NoError(t, a.settings.SaveMode(ctx, "Weather"))
	assert.Equal(t, "No agent found for Weather", a.restoreAgent(ctx))
	assert.Nil(t, a.settings.Agent())
}

func TestLookupMode(t *testing.T) {
	env := newTestEnv(t, 0)
	a := env.open(t)

	mode, ok := a.lookupMode("2")
	require.True(t, ok)
	assert.Equal(t, globalMode, mode)

	mode, ok = a.lookupMode("graphrag global assistant")
	require.True(t, ok)
	assert.Equal(t, globalMode, mode)

	_, ok = a.lookupMode("3")
	assert.False(t, ok)
	_, ok = a.lookupMode("nope")
	assert.False(t, ok)
}

func TestRunChat_Session(t *testing.T) {
	env := newTestEnv(t, 10*time.Millisecond)
	a := env.open(t)
	saveTestConnection(t, a)

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runChat(context.Background(), a, pr, out) }()

	send := func(line string) {
		_, err := io.WriteString(pw, line+"\n")
		require.NoError(t, err)
	}

	send("hello before any mode")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Select an assistant mode first")
	}, 2*time.Second, 10*time.Millisecond)

	send("/mode 2")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Now using "+globalMode)
	}, 2*time.Second, 10*time.Millisecond)

	send("Who founded Acme?")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "You asked: Who founded Acme?")
	}, 5*time.Second, 10*time.Millisecond)

	send("/retry")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Draft restored: Who founded Acme?")
	}, 2*time.Second, 10*time.Millisecond)

	send("/status")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "last poll:  succeeded")
	}, 2*time.Second, 10*time.Millisecond)

	send("/quit")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("chat loop did not exit")
	}
	assert.Equal(t, 2, a.state.Len())
}

func TestHandleLine_Commands(t *testing.T) {
	env := newTestEnv(t, 0)
	a := env.open(t)
	ctx := context.Background()

	var out bytes.Buffer
	quit, err := handleLine(ctx, a, "/help", &out)
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "/retry")

	out.Reset()
	_, err = handleLine(ctx, a, "/modes", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "1. GraphRag Entity-Focused Assistant")

	out.Reset()
	_, err = handleLine(ctx, a, "/retry", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Nothing to retry.")

	out.Reset()
	_, err = handleLine(ctx, a, "/cancel", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Nothing in progress.")

	_, err = handleLine(ctx, a, "/mode 9", &out)
	assert.ErrorContains(t, err, "unknown mode")

	_, err = handleLine(ctx, a, "/bogus", &out)
	assert.ErrorContains(t, err, "unknown command")

	quit, err = handleLine(ctx, a, "/quit", &out)
	require.NoError(t, err)
	assert.True(t, quit)
}
