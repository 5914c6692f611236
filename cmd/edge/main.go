// Command edge runs one xscontrol Edge Node: the in-process data bus, rules
// engine, plugin supervisor, optional MQTT bridge, command handler, rules
// sync, and watchdog, fronted by a small status/health HTTP surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ghuser/xscontrol/edge/bridge"
	"github.com/ghuser/xscontrol/edge/bus"
	"github.com/ghuser/xscontrol/edge/command"
	"github.com/ghuser/xscontrol/edge/plugin"
	_ "github.com/ghuser/xscontrol/edge/plugin/builtin"
	"github.com/ghuser/xscontrol/edge/rules"
	"github.com/ghuser/xscontrol/edge/rulessync"
	"github.com/ghuser/xscontrol/edge/watchdog"
	"github.com/ghuser/xscontrol/pkg/auth"
	"github.com/ghuser/xscontrol/pkg/config"
	"github.com/ghuser/xscontrol/pkg/httpx"
	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/storage"
	"github.com/ghuser/xscontrol/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if err := config.ValidateForProduction(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "production config validation failed:", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx := context.Background()
	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	store, err := storage.OpenEdgeStore(cfg.DBPath)
	if err != nil {
		log.Error("failed to open edge store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	edgeID := bridge.ResolveEdgeID(cfg.EdgeID)
	log.Info("edge starting", "edge_id", edgeID, "mqtt_enabled", cfg.MQTTEnabled)

	rulesEngine := rules.New(log, store)
	if err := rulesEngine.Load(cfg.RulesPath); err != nil {
		log.Warn("no ruleset loaded at startup", "path", cfg.RulesPath, "error", err)
	}

	dataBus := bus.New(log, store)

	supervisor := plugin.NewSupervisor(log, dataBus, rulesEngine, cfg.PluginVerifySHA)
	if err := supervisor.LoadAll(ctx, cfg.PluginDir); err != nil {
		log.Warn("plugin load failed, continuing with none loaded", "dir", cfg.PluginDir, "error", err)
	}
	defer supervisor.Stop()

	cmdHandler := command.New(log, dataBus, rulesEngine, cfg.RulesPath)
	rulesSync := rulessync.New(log, rulesEngine, dataBus, cfg.RulesPath)

	var mqttBridge *bridge.Bridge
	if cfg.MQTTEnabled {
		mqttBridge = bridge.New(log, cfg.MQTTBrokerURL(), edgeID, cmdHandler, rulesSync)
		if err := mqttBridge.Start(ctx); err != nil {
			log.Error("failed to start mqtt bridge", "error", err)
			os.Exit(1)
		}
		defer mqttBridge.Stop()
		dataBus.AttachBridge(mqttBridge)
	}

	secureAgent := auth.NewSecureAgent(cfg.PluginSigningKey)
	token := auth.DevModeToken(secureAgent, cfg.EdgeToken, cfg.Environment, log)
	log.Info("edge token ready", "auto_issued", token != cfg.EdgeToken)

	alive := &serverLiveness{}
	wd := watchdog.New(log, supervisor, alive.isAlive)
	go wd.Run(ctx)

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		},
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)

	healthChecks := httpx.HealthChecks{Storage: store}
	if mqttBridge != nil {
		healthChecks.Bridge = mqttBridge
	}
	r.Get("/health", httpx.HealthHandler(healthChecks))
	r.Get("/health/view", healthViewHandler(edgeID))
	r.Get("/status", statusHandler(edgeID, cfg))
	r.Get("/bus/stats", busStatsHandler(dataBus))

	open := auth.NewOpenPaths("/health", "/health/view", "/status", "/bus/stats")
	r.With(auth.RequireBearer(secureAgent, open, log)).Get("/metrics", metricsHandler.ServeHTTP)

	srv := httpx.NewServer(fmt.Sprintf(":%d", cfg.APIPort), r)

	go func() {
		alive.markServing()
		log.Info("edge http server listening", "addr", srv.Addr, "edge_id", edgeID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("edge stopped")
}

// serverLiveness backs the watchdog's httpAlive probe. It starts reporting
// alive only once the HTTP server goroutine is about to call
// ListenAndServe, so the watchdog never fires during the startup race.
type serverLiveness struct {
	serving atomic.Bool
}

func (s *serverLiveness) markServing()  { s.serving.Store(true) }
func (s *serverLiveness) isAlive() bool { return s.serving.Load() }

const healthViewTemplate = `<!DOCTYPE html>
<html><head><title>xscontrol edge %s</title></head>
<body><h1>Edge %s</h1><p>See <a href="/health">/health</a> for machine-readable status.</p></body>
</html>`

func healthViewHandler(edgeID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, healthViewTemplate, edgeID, edgeID)
	}
}

func statusHandler(edgeID string, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"edge_id":      edgeID,
			"version":      cfg.ServiceVersion,
			"mqtt_enabled": cfg.MQTTEnabled,
		})
	}
}

func busStatsHandler(b *bus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, b.Stats())
	}
}
