// Titand is the TITAN core daemon: the process that loads a workspace's
// config, opens its store, and runs the Gateway Runtime against whichever
// channel bridges are configured.
//
// Required environment variables: none. All configuration lives in the
// TOML file at $TITAN_CONFIG (default: ~/.titan/config.toml); see
// internal/titan/config for the documented fields.
//
// Optional environment variables:
//
//	TITAN_CONFIG   - path to the config TOML file
//	TITAN_STDIN    - read chat input from stdin as the "cli" channel, peer
//	                 "operator" (default "true"; set "false" to disable)
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/connectors"
	"github.com/antigravity-dev/titan/internal/titan/gateway"
	"github.com/antigravity-dev/titan/internal/titan/httpapi"
	"github.com/antigravity-dev/titan/internal/titan/observability"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
	"github.com/antigravity-dev/titan/internal/titan/vault"
	"github.com/antigravity-dev/titan/internal/titan/version"
)

func main() {
	fmt.Printf("TITAN core\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	cfgPath := envOr("TITAN_CONFIG", config.DefaultPath())
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	observability.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.WorkspaceDir == "" {
		slog.Error("titand: config.workspace_dir is required")
		os.Exit(1)
	}

	dbPath := filepath.Join(cfg.WorkspaceDir, "titan.db")
	st, err := store.New(dbPath)
	if err != nil {
		slog.Error("titand: open store", "path", dbPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	registry := tools.NewDefaultRegistry()
	rt := gateway.New(st, cfg, registry)

	connRegistry := connectors.NewRegistry()
	connRegistry.Register(connectors.GitHub{})

	v := vault.New(filepath.Join(cfg.WorkspaceDir, "vault.json"))
	if passphrase := os.Getenv("TITAN_VAULT_PASSPHRASE"); passphrase != "" {
		if err := v.Unlock(passphrase); err != nil {
			slog.Error("titand: unlock vault", "err", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("titand: TITAN_VAULT_PASSPHRASE not set, vault stays locked; connector tools needing secrets will fail")
	}
	secrets := connectors.NewResolver(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridges := connectBridges(cfg)
	if len(bridges) == 0 && !envBool("TITAN_STDIN", true) {
		slog.Warn("titand: no channel bridges configured and TITAN_STDIN disabled; nothing to do")
	}

	var stdinDone chan struct{}
	if envBool("TITAN_STDIN", true) {
		stdinDone = make(chan struct{})
		go runStdinLoop(ctx, rt, stdinDone)
	}

	pollDone := pollBridges(ctx, bridges)

	var httpDone chan struct{}
	if cfg.HTTPAddr != "" {
		api := httpapi.New(cfg.HTTPAddr, httpapi.Deps{
			Store:      st,
			Config:     cfg,
			Runtime:    rt,
			Connectors: connRegistry,
			Secrets:    secrets,
		})
		if err := api.Start(ctx); err != nil {
			slog.Error("titand: start http api", "err", err)
			os.Exit(1)
		}
		httpDone = make(chan struct{})
		go func() {
			defer close(httpDone)
			<-ctx.Done()
			api.Stop()
		}()
	}

	<-ctx.Done()
	slog.Info("titand: shutting down")
	if stdinDone != nil {
		<-stdinDone
	}
	if httpDone != nil {
		<-httpDone
	}
	<-pollDone
}

// connectBridges probes the channel bridges named in cfg and returns the
// ones that respond to a health check. A channel with no configured bridge
// URL (see gateway.BridgeURLEnv) is silently skipped — TITAN runs fine with
// zero channels connected, driven only by the HTTP API or stdin.
func connectBridges(cfg *config.Config) map[string]*gateway.Bridge {
	bridges := map[string]*gateway.Bridge{}
	if !cfg.Discord.Enabled {
		return bridges
	}
	for _, channel := range []string{"discord"} {
		bridge, ok := gateway.NewBridge(channel)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := bridge.Health(ctx)
		cancel()
		if err != nil {
			slog.Warn("titand: channel bridge unhealthy, skipping", "channel", channel, "err", err)
			continue
		}
		bridges[channel] = bridge
		slog.Info("titand: channel bridge connected", "channel", channel)
	}
	return bridges
}

// pollBridges is a placeholder inbound loop: real bridges push events over
// their own transport (websocket, webhook); wiring a specific bridge's
// inbound feed to ProcessChatInput is left to that bridge's adapter. This
// just confirms bridges stay healthy for as long as the process runs.
func pollBridges(ctx context.Context, bridges map[string]*gateway.Bridge) chan struct{} {
	done := make(chan struct{})
	if len(bridges) == 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for channel, bridge := range bridges {
					if err := bridge.Health(ctx); err != nil {
						slog.Warn("titand: channel bridge health check failed", "channel", channel, "err", err)
					}
				}
			}
		}
	}()
	return done
}

func runStdinLoop(ctx context.Context, rt *gateway.Runtime, done chan struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("titand: reading chat input from stdin (channel=cli, peer=operator)")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := scanner.Text()
		if text == "" {
			continue
		}
		reply, err := rt.ProcessChatInput(ctx, gateway.Event{
			Channel: "cli",
			PeerID:  "operator",
			ActorID: "operator",
			Text:    text,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if reply != "" {
			fmt.Println(reply)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
