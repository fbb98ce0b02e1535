package main

import (
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ranielm/planning-poker-sub000/internal/auth"
	"github.com/ranielm/planning-poker-sub000/internal/config"
	"github.com/ranielm/planning-poker-sub000/internal/db"
	plog "github.com/ranielm/planning-poker-sub000/internal/log"
	"github.com/ranielm/planning-poker-sub000/internal/server"
	"github.com/ranielm/planning-poker-sub000/internal/service"
	"github.com/ranielm/planning-poker-sub000/internal/session"
	"github.com/ranielm/planning-poker-sub000/internal/topic"
	"github.com/ranielm/planning-poker-sub000/internal/ws"
)

func main() {
	cfg := config.Load()
	plog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	store := session.NewGormStore(gdb)
	hub := session.NewHub(store, clockwork.NewRealClock())
	defer hub.Shutdown()

	var lookup topic.Lookup
	if cfg.TopicLookupBaseURL != "" {
		lookup = topic.NewHTTPLookup(cfg.TopicLookupBaseURL)
	}

	gw := ws.NewGateway(hub, auth.NewJWTVerifier(cfg.JWTSecret, gdb), store, lookup)
	h := server.NewHandler(
		service.NewUserService(gdb, cfg),
		service.NewRoomService(gdb, store, hub),
		service.NewHistoryService(hub),
	)

	r := server.SetupRouter(cfg, gdb, h, gw)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
