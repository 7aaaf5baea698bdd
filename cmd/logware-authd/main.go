// Command logware-authd serves the authentication API over HTTP.
//
// Configuration comes from the environment (a local .env file is loaded if
// present):
//
//	AUTH_SIGNING_SECRET   HS256 signing secret, at least 32 bytes (required)
//	AUTH_LISTEN_ADDR      listen address (default :8080)
//	AUTH_REDIS_ADDR       Redis address (default localhost:6379)
//	AUTH_REDIS_PASSWORD   Redis password (optional)
//	AUTH_DATABASE_DSN     Postgres DSN; empty selects the in-memory store
//	AUTH_ACCESS_TTL       access-token lifetime (default 15m)
//	AUTH_REFRESH_TTL      refresh-token lifetime (default 168h)
//	AUTH_LOCKOUT_THRESHOLD  failed attempts before lock (default 5)
//	AUTH_LOCKOUT_DURATION   lock duration (default 30m)
//	AUTH_RESET_TTL        reset-token lifetime (default 10m)
//	AUTH_TOTP_ISSUER      issuer label in enrollment URIs (default logware)
//	AUTH_SECURE_COOKIES   force Secure on the refresh cookie (default false)
//	AUTH_AUDIT_LOG        file path for JSON audit lines (optional)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	logauth "github.com/origbo/logware-auth"
	"github.com/origbo/logware-auth/httpapi"
	"github.com/origbo/logware-auth/metrics/export/prometheus"
	"github.com/origbo/logware-auth/store/memory"
	"github.com/origbo/logware-auth/store/postgres"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	_ = godotenv.Load()

	secret := os.Getenv("AUTH_SIGNING_SECRET")
	if secret == "" {
		return errors.New("AUTH_SIGNING_SECRET is required")
	}

	cfg := logauth.DefaultConfig()
	cfg.Token.Secret = []byte(secret)
	cfg.Token.AccessTTL = envDuration("AUTH_ACCESS_TTL", cfg.Token.AccessTTL)
	cfg.Token.RefreshTTL = envDuration("AUTH_REFRESH_TTL", cfg.Token.RefreshTTL)
	cfg.Lockout.Threshold = envInt("AUTH_LOCKOUT_THRESHOLD", cfg.Lockout.Threshold)
	cfg.Lockout.LockDuration = envDuration("AUTH_LOCKOUT_DURATION", cfg.Lockout.LockDuration)
	cfg.Reset.TTL = envDuration("AUTH_RESET_TTL", cfg.Reset.TTL)
	if issuer := os.Getenv("AUTH_TOTP_ISSUER"); issuer != "" {
		cfg.TOTP.Issuer = issuer
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     envString("AUTH_REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("AUTH_REDIS_PASSWORD"),
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	store, closeStore, err := buildStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	builder := logauth.New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithAccountStore(store)

	if auditPath := os.Getenv("AUTH_AUDIT_LOG"); auditPath != "" {
		f, err := os.OpenFile(auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		cfg.Audit.Enabled = true
		builder = builder.WithConfig(cfg).WithAuditSink(logauth.NewJSONWriterSink(f))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.New(engine,
		httpapi.WithLogger(log),
		httpapi.WithSecureCookies(envBool("AUTH_SECURE_COOKIES")),
	))
	mux.Handle("GET /metrics", prometheus.NewExporter(engine).Handler())

	server := &http.Server{
		Addr:              envString("AUTH_LISTEN_ADDR", ":8080"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStore(ctx context.Context, log *slog.Logger) (logauth.AccountStore, func(), error) {
	dsn := os.Getenv("AUTH_DATABASE_DSN")
	if dsn == "" {
		log.Warn("no AUTH_DATABASE_DSN set, using in-memory account store")
		return memory.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.New(pool), pool.Close, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
