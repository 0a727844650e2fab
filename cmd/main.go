package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"eventpress/cmd/buildCFG"
	"eventpress/internal/api/api"
	"eventpress/internal/cipher"
	rabbitReader "eventpress/internal/consumerWorker"
	"eventpress/internal/mailer"
	"eventpress/internal/notify"
	"eventpress/internal/rabbit"
	"eventpress/internal/registration"
	"eventpress/internal/repo"
	"eventpress/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg := config.New()
	if err := cfg.Load(configPath, "", ""); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}

	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	authCfg, err := buildCFG.BuildAuthConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build auth config")
	}

	dbCfg, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}

	var repository repo.Repository
	switch dbCfg.Driver {
	case repo.DialectSQLite:
		lite, err := sql.Open(repo.DialectSQLite, dbCfg.SQLitePath+"?_foreign_keys=on&_busy_timeout=5000")
		if err != nil {
			log.Fatal().Msgf("failed to open sqlite DB: %v", err)
		}
		defer lite.Close()
		repository, err = repo.NewSQLRepository(lite, repo.DialectSQLite, &log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
	default:
		db, err := dbpg.New(dbCfg.MasterDSN, dbCfg.SlaveDSNs, dbCfg.Options)
		if err != nil {
			log.Fatal().Msgf("failed to connect to DB: %v", err)
		}
		repository, err = repo.NewRepository(db, &log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
	}
	log.Info().Str("driver", dbCfg.Driver).Msg("Database connected successfully")

	if err := repository.MigrateUp(dbCfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	mail := mailer.New(buildCFG.BuildMailConfig(cfg, &log), &log)

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	regCfg := buildCFG.BuildRegistrationConfig(cfg)
	crypt := cipher.New()
	resolver := registration.NewResolver(repository, crypt, &log, regCfg)
	deliverer := notify.NewDeliverer(resolver, mail, &log)

	var (
		notifier registration.Notifier = deliverer
		rmq      *rabbit.Client
		reader   *rabbitReader.Reader
	)
	if rabbitCfg.Enabled {
		rmq, err = rabbit.NewRabbit(rabbitCfg.Config)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		notifier = notify.NewQueue(rmq)
		reader = rabbitReader.NewReader(rmq, deliverer)
		reader.Start(workerCtx)
	}

	core := registration.NewService(repository, crypt, notifier, &log, regCfg)
	app := api.NewRouters(&api.Routers{
		Service:     service.NewService(core, &log),
		Logger:      &log,
		JWTSecret:   authCfg.JWTSecret,
		CORSOrigins: serverCfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: app,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	// let detached confirmations finish before the broker goes away
	core.Wait()

	if reader != nil {
		_ = rmq.Cancel()
		cancelWorkers()
		reader.Stop()
		rmq.Close()
	}

	if dbCfg.RollbackOnShutdown {
		log.Info().Msg("Rolling back migrations...")
		if err := repository.MigrateDown(dbCfg.MigrationsDir); err != nil {
			log.Error().Msgf("failed to rollback migrations: %v", err)
		}
	}
	log.Info().Msg("Shutdown complete")
}
