package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mwhitfield/courier/internal/auth"
	"github.com/mwhitfield/courier/internal/config"
	"github.com/mwhitfield/courier/internal/message"
	"github.com/mwhitfield/courier/internal/ratelimit"
	"github.com/mwhitfield/courier/internal/registry"
	"github.com/mwhitfield/courier/internal/relay"
	"github.com/mwhitfield/courier/internal/server"
	"github.com/mwhitfield/courier/internal/user"
	"github.com/mwhitfield/courier/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.SQLitePath != "" {
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("open sqlite")
		}
		defer db.Close()
		// The driver serializes access through a single connection; more
		// would contend on the file lock.
		db.SetMaxOpenConns(1)
	}

	dir, err := newDirectory(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("init user directory")
	}
	store, err := newMessageStore(ctx, cfg, db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init message store")
	}

	tokens := auth.New([]byte(cfg.JWTSecret), cfg.TokenTTL)

	var connOpts []ws.ConnManagerOption
	if cfg.MaxConns > 0 {
		connOpts = append(connOpts, ws.WithMaxConns(cfg.MaxConns))
	}
	if cfg.IdleTimeout > 0 {
		connOpts = append(connOpts, ws.WithIdleTimeout(cfg.IdleTimeout))
	}

	reg := registry.New()
	conns := ws.NewConnManager(log, connOpts...)
	hub := ws.NewHub(reg, conns, log)

	router := relay.NewRouter(store, reg, hub, cfg.MaxMessageLength, log)
	receipts := relay.NewReceipts(store, reg, hub, log)
	presence := relay.NewPresence(dir, hub, log)

	gateway := ws.NewGateway(hub, tokens, router, receipts, presence, log)
	limiter := ratelimit.NewIPLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)

	srv := server.New(cfg.ListenAddr, server.Deps{
		Log:       log,
		Directory: dir,
		Messages:  store,
		Tokens:    tokens,
		Gateway:   gateway,
		Limiter:   limiter,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
		return
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	conns.Shutdown()
	log.Info().Msg("stopped")
}

// newLogger builds the process logger: human-readable console output in
// development, JSON everywhere else.
func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func newDirectory(ctx context.Context, db *sql.DB) (user.Directory, error) {
	if db != nil {
		return user.NewSQLiteDirectory(ctx, db)
	}
	return user.NewMemoryDirectory(), nil
}

// newMessageStore picks the message backend: Redis when configured, then
// SQLite, then memory.
func newMessageStore(ctx context.Context, cfg *config.Config, db *sql.DB, log zerolog.Logger) (message.Store, error) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis message store")
		return message.NewRedisStore(client), nil
	}
	if db != nil {
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite message store")
		return message.NewSQLiteStore(ctx, db)
	}
	log.Info().Msg("using in-memory message store")
	return message.NewMemoryStore(), nil
}
