package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"polymath/pkg/agent"
	"polymath/pkg/api"
	"polymath/pkg/channels"
	_ "polymath/pkg/channels/autoload" // registers channel factories
	"polymath/pkg/chat"
	"polymath/pkg/config"
	"polymath/pkg/gateway"
	"polymath/pkg/handler"
	"polymath/pkg/llm"
	_ "polymath/pkg/llm/autoload" // registers LLM providers
	"polymath/pkg/monitor"
	"polymath/pkg/tools"

	"github.com/spf13/cobra"
)

// runtime is everything rebuilt when the application config changes.
// Sessions outlive it.
type runtime struct {
	gw      *gateway.GatewayManager
	handler *handler.ChatHandler
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("❌ %v\n", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, systemPath string

	cmd := &cobra.Command{
		Use:   "polymath",
		Short: "Math solver & data search chat assistant",
		Long: `Polymath answers questions in a chat page by letting an LLM agent
use a Wikipedia lookup, a calculator and a reasoning tool.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, systemPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Application config file (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&systemPath, "system", config.DefaultSystemFile, "System config file")
	return cmd
}

// serve runs the assistant until SIGINT or SIGTERM, reloading on config changes.
func serve(parent context.Context, configPath, systemPath string) error {
	cfg, sys, err := config.Load(configPath, systemPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	monitor.Startup(sys.LogLevel)

	var sysCfg atomic.Pointer[config.SystemConfig]
	sysCfg.Store(sys)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := chat.NewManager(cfg.Greeting)
	go sessions.RunJanitor(ctx, time.Minute, func() time.Duration {
		return time.Duration(sysCfg.Load().SessionIdleTimeoutMs) * time.Millisecond
	})

	rt, err := startRuntime(cfg, sysCfg.Load, sessions)
	if err != nil {
		return err
	}

	reloadCh := config.WatchConfig(ctx, configPath, systemPath)

	// Handlers replaced by a reload may still be finishing a run.
	var retired []*handler.ChatHandler

	for {
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal. Stopping services...")
			if rt != nil {
				rt.gw.StopAll()
				retired = append(retired, rt.handler)
			}
			for _, h := range retired {
				h.Wait()
			}
			slog.Info("Bye!")
			return nil

		case file, ok := <-reloadCh:
			if !ok {
				reloadCh = nil
				continue
			}
			switch file {
			case systemPath:
				newSys := config.LoadSystemConfig(file)
				sysCfg.Store(newSys)
				monitor.SetLogLevel(newSys.LogLevel)
				if rt != nil {
					rt.handler.SetSystemConfig(newSys)
				}
				slog.Info("System configuration reloaded")

			case configPath:
				newCfg, err := config.LoadConfig(file)
				if err != nil {
					slog.Error("Keeping previous configuration", "file", file, "error", err)
					continue
				}
				if rt != nil {
					rt.gw.StopAll()
					retired = append(retired, rt.handler)
					rt = nil
				}
				next, err := startRuntime(newCfg, sysCfg.Load, sessions)
				if err != nil {
					slog.Error("Failed to restart with new configuration", "error", err)
					continue
				}
				rt = next
				slog.Info("Application configuration reloaded")
			}
		}
	}
}

// startRuntime wires handler, channels and gateway for one application config.
func startRuntime(cfg *config.Config, currentSys func() *config.SystemConfig, sessions *chat.Manager) (*runtime, error) {
	factory := func(apiKey string) (api.Agent, error) {
		sys := currentSys()
		client, err := llm.NewFromConfig(cfg.LLM, apiKey, sys)
		if err != nil {
			return nil, err
		}
		registry := tools.NewDefaultRegistry(client, cfg.Wikipedia, nil, time.Duration(sys.HTTPTimeoutMs)*time.Millisecond)
		slog.Debug("Agent assembled", "provider", client.Provider(), "tools", registry.Names())
		return agent.NewExecutor(client, registry, agent.Options{
			MaxIterations:       cfg.Agent.MaxIterations,
			HandleParsingErrors: cfg.Agent.ParsingErrorsHandled(),
		}), nil
	}

	h := handler.NewChatHandler(factory, cfg, currentSys(), sessions)

	chs := channels.LoadFromConfig(cfg, currentSys())
	gw, err := gateway.NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(chs...).
		WithChannelBuffer(currentSys().StreamBufferSize).
		WithHandler(h).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway: %w", err)
	}

	slog.Info("Gateway started", "channels", gw.ChannelIDs())
	return &runtime{gw: gw, handler: h}, nil
}
