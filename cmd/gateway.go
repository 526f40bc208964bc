package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zk-armor/openclaw/internal/bus"
	"github.com/zk-armor/openclaw/internal/channels"
	"github.com/zk-armor/openclaw/internal/channels/discord"
	"github.com/zk-armor/openclaw/internal/channels/telegram"
	"github.com/zk-armor/openclaw/internal/config"
	"github.com/zk-armor/openclaw/internal/gateway"
	"github.com/zk-armor/openclaw/internal/store"
	"github.com/zk-armor/openclaw/internal/store/sqlite"
	"github.com/zk-armor/openclaw/internal/telemetry"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway (default when no subcommand is given)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var pairingStore store.PairingStore
	if cfg.Store.PairingDB != "" {
		ps, err := sqlite.Open(cfg.Store.PairingDB)
		if err != nil {
			slog.Error("failed to open pairing store", "path", cfg.Store.PairingDB, "error", err)
			os.Exit(1)
		}
		pairingStore = ps
		defer ps.Close()
	} else {
		slog.Warn("no pairing database configured; pairing policy will deny everyone")
	}

	msgBus := bus.New()
	agentID := cfg.Agents.DefaultAgentID()

	channelMgr := channels.NewManager(msgBus)
	if cfg.Channels.Telegram.Enabled {
		tg, err := telegram.New(cfg, msgBus, pairingStore)
		if err != nil {
			slog.Error("failed to create telegram channel", "error", err)
			os.Exit(1)
		}
		tg.SetAgentID(agentID)
		channelMgr.Register(tg)
	}
	if cfg.Channels.Discord.Enabled {
		dc, err := discord.New(cfg, msgBus, pairingStore)
		if err != nil {
			slog.Error("failed to create discord channel", "error", err)
			os.Exit(1)
		}
		dc.SetAgentID(agentID)
		channelMgr.Register(dc)
	}

	dispatcher := gateway.NewDispatcher(msgBus,
		gateway.StaticRouter{AgentID: agentID},
		logBackend{},
	)
	go dispatcher.Run(ctx)

	server := gateway.NewServer(cfg.Gateway, msgBus)
	if err := server.Start(); err != nil {
		slog.Error("failed to start gateway server", "error", err)
		os.Exit(1)
	}

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}

	stopWatch, err := config.Watch(cfgPath, cfg, nil)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	slog.Info("openclaw gateway started",
		"version", Version,
		"agent", agentID,
		"channels", channelMgr.Names(),
		"addr", cfg.Gateway.Host,
		"port", cfg.Gateway.Port,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := channelMgr.StopAll(stopCtx); err != nil {
		slog.Warn("channel shutdown reported errors", "error", err)
	}
	if err := server.Shutdown(stopCtx); err != nil {
		slog.Warn("server shutdown failed", "error", err)
	}
	cancel()
}

// logBackend is the built-in agent backend: it records routed messages.
// Real deployments substitute an agent runtime behind gateway.AgentBackend.
type logBackend struct{}

func (logBackend) HandleMessage(_ context.Context, msg bus.InboundMessage) error {
	slog.Info("message routed",
		"channel", msg.Channel,
		"agent_id", msg.AgentID,
		"session_key", msg.SessionKey,
		"context_key", msg.ContextKey,
	)
	return nil
}
