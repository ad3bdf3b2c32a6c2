// ABOUTME: Optional tailnet listener for the relay via tsnet
// ABOUTME: Resolves state dir and auth key, brings the node up and listens on :80

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/2389/graphrag-assistant/internal/config"
)

func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set relay.tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "graphrag-relay", "tailscale"), nil
}

func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set relay.tailscale.auth_key or TS_AUTHKEY")
	}
	return authKey, nil
}

// listenTailscale starts a tsnet node and returns a listener on its HTTP port.
// The returned cleanup closes the node.
func listenTailscale(ctx context.Context, cfg config.TailscaleConfig, logger *slog.Logger) (net.Listener, func(), error) {
	stateDir, err := resolveTailscaleStateDir(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	ts := &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       stateDir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   authKey,
	}

	logger.Info("starting tailscale node", "hostname", cfg.Hostname, "state_dir", stateDir, "ephemeral", cfg.Ephemeral)
	status, err := ts.Up(ctx)
	if err != nil {
		_ = ts.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	logger.Info("tailscale node ready", "hostname", cfg.Hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	ln, err := ts.Listen("tcp", ":80")
	if err != nil {
		_ = ts.Close()
		return nil, nil, fmt.Errorf("listening on tailscale http port: %w", err)
	}
	return ln, func() { _ = ts.Close() }, nil
}
