// Command chidorid runs the Chidori execution engine as a standalone
// HTTP/JSON + WebSocket server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chidori-ai/chidori"
	"github.com/chidori-ai/chidori/internal/api"
	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/config"
	"github.com/chidori-ai/chidori/internal/executorreg"
	"github.com/chidori-ai/chidori/internal/historystore"
	"github.com/chidori-ai/chidori/internal/obslog"
)

func main() {
	debug := flag.Bool("debug", false, "enable verbose gin logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	obslog.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("listen_addr", cfg.ListenAddr).Msg("starting chidorid")

	reg := chidori.DefaultExecutors()
	reg.Register(cell.KindPrompt, executorreg.NewOpenAIPromptExecutor(cfg.OpenAIAPIKey))
	reg.Register(cell.KindCodeGen, executorreg.NewOpenAIPromptExecutor(cfg.OpenAIAPIKey))

	var opts []chidori.Option
	opts = append(opts, chidori.WithMaxSteps(cfg.MaxStepsPerLineage))
	opts = append(opts, chidori.WithMaxConcurrentOperations(cfg.MaxConcurrentOperations))

	var history *historystore.Store
	if cfg.DatabaseDSN != "" {
		history, err = historystore.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to history store")
		}
		if err := history.Migrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate history store schema")
		}
		opts = append(opts, chidori.WithObserver(history))
		log.Info().Msg("durable history export enabled")
	}

	rt := chidori.NewRuntime(reg, opts...)

	var serverOpts []api.Option
	if *debug {
		serverOpts = append(serverOpts, api.WithDebug())
	}
	if cfg.JWTSigningKey != "" {
		serverOpts = append(serverOpts, api.WithJWT(cfg.JWTSigningKey))
		log.Info().Msg("bearer token authentication enabled on mutating routes")
	}
	srv := api.NewServer(rt.Supervisor, rt.Graph, rt.Analyzers, serverOpts...)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if history != nil {
		if err := history.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close history store")
		}
	}
	log.Info().Msg("server exited gracefully")
}
