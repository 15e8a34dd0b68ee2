package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vrachnos/steer/infra/config"
	"github.com/vrachnos/steer/internal/manager"
	"github.com/vrachnos/steer/internal/server"
	"github.com/vrachnos/steer/internal/storage"
)

func main() {

	cfgPath := os.Getenv("STEER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/steer.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Warn().Err(err).Msg("no config file, running on defaults")
		cfg = &config.Config{}
	}
	if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil && cfg.App.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}

	storageDir := cfg.App.StorageDir
	if storageDir == "" {
		storageDir = ".steer"
	}
	store, err := storage.NewJsonBlob(storageDir)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open storage")
	}

	market := newLocalMarket(42)
	portfolio := newPaperPortfolio(100000)
	execution := &paperExecution{portfolio: portfolio}

	m := manager.New(cfg.ManagerConfig(), market, portfolio, execution, nil, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Run(ctx)

	strategiesDir := cfg.App.StrategiesDir
	if strategiesDir == "" {
		strategiesDir = "config/strategies"
	}
	strategies, err := config.LoadStrategies(strategiesDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", strategiesDir).Msg("no strategy definitions")
	}
	for _, strategy := range strategies {
		if err := m.LoadStrategy(strategy); err != nil {
			log.Error().Err(err).Str("strategy", strategy.ID).Msg("could not load strategy")
			continue
		}
		if err := m.StartStrategy(ctx, strategy.ID); err != nil {
			log.Error().Err(err).Str("strategy", strategy.ID).Msg("could not start strategy")
		}
	}

	port := cfg.App.Port
	if port == 0 {
		port = 6090
	}
	srv := server.NewServer("steer", port).
		Add(server.Live(), server.Status(m), server.Strategy(m), server.Lifecycle(m))
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	cancel()
	m.Shutdown()
}
