package main

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"undercover-arena/internal/ai"
	"undercover-arena/internal/config"
	"undercover-arena/internal/game"
	"undercover-arena/internal/hub"
	"undercover-arena/internal/logging"
	"undercover-arena/internal/recovery"
	"undercover-arena/internal/settle"
	"undercover-arena/internal/store"
	httptransport "undercover-arena/internal/transport/http"
	"undercover-arena/internal/words"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	if err := logging.Init(cfg.Log); err != nil {
		panic(err)
	}

	st, err := store.New(cfg.Server.PostgresDSN, cfg.Server.SessionCacheTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	registry := game.NewRegistry()
	wsHub := hub.New(cfg.Server.WSPingInterval, cfg.Server.WSQueueCapacity)
	wordProvider := words.NewProvider(rand.New(rand.NewSource(time.Now().UnixNano())))
	settler := settle.NewRecorder(nil)

	engine := game.NewEngine(st, registry, wsHub, wordProvider, settler, nil)
	orchestrator := ai.NewOrchestrator(engine, ai.NewClient(cfg.AI), cfg.AI, nil)
	engine.Scheduler = orchestrator

	// resume in-flight sessions before accepting traffic
	recoverer := recovery.NewService(st, registry, orchestrator, cfg.Server.RecoveryWindow)
	if _, err := recoverer.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("session recovery failed")
	}

	r := httptransport.NewRouter(engine, wsHub.HandleWS, st, cfg.Server)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}
