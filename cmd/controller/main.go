// Command controller runs the xscontrol Controller: the MQTT ingest loop,
// observer fan-out, command dispatch, and rules publisher, fronted by the
// fleet management HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ghuser/xscontrol/controller/broker"
	"github.com/ghuser/xscontrol/controller/dispatch"
	"github.com/ghuser/xscontrol/controller/ingest"
	"github.com/ghuser/xscontrol/controller/observer"
	"github.com/ghuser/xscontrol/controller/rulespublisher"
	"github.com/ghuser/xscontrol/pkg/auth"
	"github.com/ghuser/xscontrol/pkg/config"
	"github.com/ghuser/xscontrol/pkg/errhttp"
	"github.com/ghuser/xscontrol/pkg/httpx"
	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/storage"
	"github.com/ghuser/xscontrol/pkg/telemetry"
	"github.com/ghuser/xscontrol/pkg/validator"
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

	store, err := storage.OpenControllerStore(cfg.DBPath)
	if err != nil {
		log.Error("failed to open controller store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("controller store opened", "path", cfg.DBPath)

	brokerClient, err := broker.Dial(cfg.MQTTBrokerURL(), "xscontroller", log)
	if err != nil {
		log.Error("failed to dial mqtt broker", "error", err)
		os.Exit(1)
	}
	defer brokerClient.Close()

	hub := observer.NewHub(log)
	hubCtx, cancelHub := context.WithCancel(ctx)
	go hub.Run(hubCtx.Done())
	defer cancelHub()

	ingestLoop := ingest.New(log, store, hub, cfg.MQTTBrokerURL(), "xscontroller-ingest")
	ingestCtx, cancelIngest := context.WithCancel(ctx)
	go ingestLoop.Run(ingestCtx)
	defer cancelIngest()

	commandDispatch := dispatch.New(log, store, brokerClient)
	rulesPublisher := rulespublisher.New(log, store, brokerClient)

	secureAgent := auth.NewSecureAgent(cfg.CtrlJWTSecret)
	auth.DevModeToken(secureAgent, "", cfg.Environment, log)

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

	r.Get("/health", httpx.HealthHandler(httpx.HealthChecks{Storage: store, Bridge: brokerClient}))
	r.Get("/ws/telemetry", hub.ServeWS)
	r.Post("/auth/token", tokenHandler(secureAgent, cfg.CtrlMasterKey))
	r.Post("/edges/register", registerEdgeHandler(log, store))
	r.Get("/edges", listEdgesHandler(store))
	r.Get("/telemetry/latest", latestTelemetryHandler(store))

	open := auth.NewOpenPaths("/health", "/ws/telemetry", "/auth/token")
	bearer := auth.RequireBearer(secureAgent, open, log)
	r.Group(func(r chi.Router) {
		r.Use(bearer)
		r.Post("/commands/send", sendCommandHandler(commandDispatch))
		r.Post("/rules/push", pushRulesHandler(rulesPublisher))
	})
	r.With(bearer).Get("/metrics", metricsHandler.ServeHTTP)

	srv := httpx.NewServer(fmt.Sprintf(":%d", cfg.APIPort), r)

	go func() {
		log.Info("controller http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	cancelIngest()
	cancelHub()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("controller stopped")
}

func tokenHandler(agent *auth.SecureAgent, masterKey string) http.HandlerFunc {
	type request struct {
		MasterKey string `json:"master_key"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := validator.ValidateRequest[request](w, r)
		if !ok {
			return
		}
		if req.MasterKey == "" || req.MasterKey != masterKey {
			httpx.JSONError(w, http.StatusUnauthorized, "invalid master key")
			return
		}
		token, err := agent.IssueToken()
		if err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func registerEdgeHandler(log logger.Logger, store *storage.ControllerStore) http.HandlerFunc {
	type request struct {
		EdgeID  string `json:"edge_id" validate:"required"`
		Version string `json:"version"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := validator.ValidateRequest[request](w, r)
		if !ok {
			return
		}
		rec, err := store.UpsertEdge(req.EdgeID, req.Version)
		if err != nil {
			log.ErrorContext(r.Context(), "register edge failed", "edge_id", req.EdgeID, "error", err)
			httpx.JSONError(w, http.StatusInternalServerError, "failed to register edge")
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	}
}

func listEdgesHandler(store *storage.ControllerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edges, err := store.ListEdges()
		if err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "failed to list edges")
			return
		}
		httpx.JSON(w, http.StatusOK, edges)
	}
}

func latestTelemetryHandler(store *storage.ControllerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		recs, err := store.LatestTelemetry(limit)
		if err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "failed to read telemetry")
			return
		}
		httpx.JSON(w, http.StatusOK, recs)
	}
}

func sendCommandHandler(d *dispatch.Dispatch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := validator.ValidateRequest[dispatch.Request](w, r)
		if !ok {
			return
		}
		result, err := d.Send(r.Context(), *req)
		if err != nil {
			errhttp.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, result)
	}
}

func pushRulesHandler(p *rulespublisher.RulesPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := validator.ValidateRequest[rulespublisher.Request](w, r)
		if !ok {
			return
		}
		result, err := p.Push(r.Context(), *req)
		if err != nil {
			errhttp.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}
