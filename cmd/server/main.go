package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/aggregate"
	"github.com/RMahshie/resonara/internal/api"
	"github.com/RMahshie/resonara/internal/api/handlers"
	"github.com/RMahshie/resonara/internal/campaign"
	"github.com/RMahshie/resonara/internal/config"
	"github.com/RMahshie/resonara/internal/fit"
	"github.com/RMahshie/resonara/internal/sweep"
	"github.com/RMahshie/resonara/pkg/models"
)

func main() {
	// Configure zerolog for structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	startup, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	driver, instrumentCloser, err := openInstrument(startup, cfg.Instrument)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Instrument.Driver).Msg("Failed to open instrument")
	}
	defer instrumentCloser.Close()

	repo, repoCloser, err := openRepository(startup, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open run repository")
	}
	defer repoCloser.Close()

	store, err := openStore(startup, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open artifact store")
	}

	controller := sweep.NewController(driver, sweep.Config{
		PollInterval: cfg.Sweep.PollInterval,
		SettleDelay:  cfg.Sweep.SettleDelay,
		SafetyMargin: cfg.Sweep.SafetyMargin,
	})

	opts := []campaign.Option{}
	if store != nil {
		opts = append(opts, campaign.WithStore(store))
	}
	if cfg.Fit.Command != "" {
		opts = append(opts, campaign.WithFitter(fit.NewCommandFitter(cfg.Fit.Command, cfg.Fit.Script, cfg.Fit.Extension), cfg.Fit.Extension))
		log.Info().Str("command", cfg.Fit.Command).Msg("Fitting enabled")
	}
	runner := campaign.NewRunner(controller, repo, cfg.Measurement.BasePath, opts...)

	analysisHandler := handlers.NewAnalysisHandler(cfg.Measurement.BasePath, cfg.Measurement.DefaultAttenuation,
		aggregate.PowerRange{Min: cfg.Measurement.MinPower, Max: cfg.Measurement.MaxPower}, cfg.Fit.Extension)
	sweepHandler := handlers.NewSweepHandler(runner, repo, store, cfg.Fit.Extension)

	// Create Chi router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Create Huma API
	humaConfig := huma.DefaultConfig("Resonara API", "1.0.0")
	humaConfig.DocsPath = "/api/docs"
	humaAPI := humachi.New(router, humaConfig)

	// Register health endpoint
	huma.Register(humaAPI, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = "1.0.0"
		resp.Body.Instrument = cfg.Instrument.Driver
		resp.Body.Time = time.Now()
		return resp, nil
	})

	api.RegisterRoutes(humaAPI, analysisHandler, sweepHandler)

	// Serve OpenAPI spec at /api/docs
	router.Get("/api/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		spec, err := humaAPI.OpenAPI().MarshalJSON()
		if err != nil {
			http.Error(w, "Failed to generate OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Write(spec)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting Resonara API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// The instrument stays open until queued acquisitions finish and
	// switch its output off.
	log.Info().Msg("Waiting for running acquisitions")
	sweepHandler.Wait()

	log.Info().Msg("Server exited")
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", middleware.GetReqID(r.Context())).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
