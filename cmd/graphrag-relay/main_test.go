// ABOUTME: Tests for relay command helpers
// ABOUTME: Covers default agent registration and the health probe

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/relay"
)

func TestDefaultAgents(t *testing.T) {
	agents := defaultAgents(config.DefaultModes)
	require.Len(t, agents, len(config.DefaultModes))
	for i, a := range agents {
		assert.Equal(t, config.DefaultModes[i], a.Name)
		assert.NotEmpty(t, a.Address)
	}
	assert.NotEqual(t, agents[0].Address, agents[1].Address)
}

func TestRunHealth(t *testing.T) {
	srv := relay.New(relay.Options{})
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), ts.URL, &out))
	assert.Contains(t, out.String(), "healthy")
}

func TestRunHealth_Unhealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)

	err := runHealth(context.Background(), ts.URL, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
