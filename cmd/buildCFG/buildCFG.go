package buildCFG

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventpress/internal/mailer"
	"eventpress/internal/rabbit"
	"eventpress/internal/registration"
)

// Source is the read side of wbf's config.Config.
type Source interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type DBConfig struct {
	Driver             string
	MasterDSN          string
	SlaveDSNs          []string
	SQLitePath         string
	Options            *dbpg.Options
	MigrationsDir      string
	RollbackOnShutdown bool
}

type AuthConfig struct {
	JWTSecret []byte
}

type RabbitConfig struct {
	Enabled bool
	rabbit.Config
}

func BuildServerConfig(cfg Source, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, using 8080")
	}
	timeout := cfg.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return ServerConfig{
		Port:            port,
		ShutdownTimeout: timeout,
		CORSOrigins:     cfg.GetStringSlice("server.cors_origins"),
	}
}

func BuildDBConfig(cfg Source, log *zerolog.Logger) (DBConfig, error) {
	driver := cfg.GetString("database.driver")
	if driver == "" {
		driver = "postgres"
	}

	db := DBConfig{
		Driver:             driver,
		MasterDSN:          envOr("DATABASE_MASTER_DSN", cfg.GetString("database.master_dsn")),
		SlaveDSNs:          cfg.GetStringSlice("database.slave_dsns"),
		SQLitePath:         cfg.GetString("database.sqlite_path"),
		MigrationsDir:      cfg.GetString("database.migrations"),
		RollbackOnShutdown: cfg.GetBool("database.rollback_on_shutdown"),
		Options: &dbpg.Options{
			MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
			MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: cfg.GetDuration("database.conn_max_lifetime"),
		},
	}
	migrations := "migrations/postgres"
	switch driver {
	case "postgres":
		if db.MasterDSN == "" {
			return DBConfig{}, errors.New("database.master_dsn is required")
		}
	case "sqlite3":
		migrations = "migrations/sqlite"
		if db.SQLitePath == "" {
			db.SQLitePath = "eventpress.db"
		}
	default:
		return DBConfig{}, fmt.Errorf("unsupported database.driver %q", driver)
	}
	if db.MigrationsDir == "" {
		db.MigrationsDir = migrations
	}

	log.Info().
		Str("driver", driver).
		Int("slaves", len(db.SlaveDSNs)).
		Int("max_open_conns", db.Options.MaxOpenConns).
		Msg("database config loaded")
	return db, nil
}

func BuildRabbitConfig(cfg Source, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled: cfg.GetBool("rabbitmq.enabled"),
		Config: rabbit.Config{
			URL:         envOr("RABBITMQ_URL", cfg.GetString("rabbitmq.url")),
			Exchange:    cfg.GetString("rabbitmq.exchange"),
			Queue:       cfg.GetString("rabbitmq.queue"),
			Delayed:     cfg.GetBool("rabbitmq.delayed"),
			MaxAttempts: cfg.GetInt("rabbitmq.max_attempts"),
			RetryDelay:  cfg.GetDuration("rabbitmq.retry_delay"),
		},
	}
	if !rc.Enabled {
		log.Info().Msg("RabbitMQ disabled, notifications are sent in-process")
		return rc, nil
	}
	if rc.URL == "" || rc.Exchange == "" || rc.Queue == "" {
		return RabbitConfig{}, errors.New("rabbitmq.url, rabbitmq.exchange and rabbitmq.queue are required when rabbitmq.enabled")
	}
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = rabbit.DefaultMaxAttempts
	}
	if rc.RetryDelay <= 0 {
		rc.RetryDelay = rabbit.DefaultRetryDelay
	}
	return rc, nil
}

func BuildMailConfig(cfg Source, log *zerolog.Logger) mailer.Config {
	mc := mailer.Config{
		Host:       cfg.GetString("mail.host"),
		Port:       cfg.GetInt("mail.port"),
		Username:   cfg.GetString("mail.username"),
		Password:   os.Getenv("SMTP_PASSWORD"),
		From:       cfg.GetString("mail.from"),
		BatchSize:  cfg.GetInt("mail.batch_size"),
		BatchDelay: cfg.GetDuration("mail.batch_delay"),
	}
	if mc.BatchDelay == 0 {
		mc.BatchDelay = mailer.DefaultBatchDelay
	}
	if mc.Host == "" {
		log.Warn().Msg("mail.host not set, emails will be logged instead of sent")
	}
	return mc
}

func BuildRegistrationConfig(cfg Source) registration.Config {
	return registration.Config{
		QRBaseURL:     cfg.GetString("ticket.qr_base_url"),
		QRSize:        cfg.GetInt("ticket.qr_size"),
		NotifyTimeout: cfg.GetDuration("notify.timeout"),
	}
}

func BuildAuthConfig() (AuthConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return AuthConfig{}, errors.New("JWT_SECRET is not set")
	}
	return AuthConfig{JWTSecret: []byte(secret)}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
