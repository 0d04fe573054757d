package agora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/cache"
	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/database/mongodb"
	"github.com/nasermirzaei89/agora/database/postgres"
	"github.com/nasermirzaei89/agora/database/sqlite3"
	"github.com/nasermirzaei89/agora/database/sqlstore"
	"github.com/nasermirzaei89/agora/interactions"
	"github.com/nasermirzaei89/agora/messaging/rabbitmq"
	"github.com/nasermirzaei89/agora/random"
	"github.com/nasermirzaei89/agora/server"
	"github.com/nasermirzaei89/agora/web"
	"github.com/nasermirzaei89/env"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMongoDB  = "mongodb"
)

type UnknownDriverError struct {
	Driver string
}

func (err UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown database driver %q", err.Driver)
}

type App struct {
	server  *server.Server
	handler *web.Handler
	closers []func(ctx context.Context) error
}

func NewApp(ctx context.Context) (*App, error) {
	app := &App{
		server: newServer(),
	}

	store, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}

	app.closers = append(app.closers, store.close)

	sessionDuration, err := getDurationFromEnv("SESSION_DURATION", authentication.DefaultSessionDuration)
	if err != nil {
		return nil, app.closeAfter(ctx, err)
	}

	authSvc := authentication.NewService(store.users, store.sessions, sessionDuration)

	err = authSvc.LoadBloomFilter(ctx, 10_000, 0.01)
	if err != nil {
		return nil, app.closeAfter(ctx, fmt.Errorf("failed to load bloom filter: %w", err))
	}

	tokens := authentication.NewTokenManager([]byte(env.GetString("TOKEN_SECRET", random.String(32))))

	users, err := app.newUserDirectory(ctx, authSvc)
	if err != nil {
		return nil, app.closeAfter(ctx, err)
	}

	publisher, err := app.newPublisher()
	if err != nil {
		return nil, app.closeAfter(ctx, err)
	}

	contentsSvc := contents.NewService(store.posts)
	interactionsSvc := interactions.NewService(store.interactions, store.posts, users, publisher)

	sessionName := env.GetString("SESSION_NAME", "agora-"+random.String(4))
	sessionKey := env.GetString("SESSION_KEY", random.String(32))
	cookieStore := sessions.NewCookieStore([]byte(sessionKey))
	cookieStore.Options.HttpOnly = true
	cookieStore.Options.SameSite = http.SameSiteLaxMode
	cookieStore.Options.Secure = app.server.TLS.Enabled
	cookieStore.MaxAge(int(sessionDuration.Seconds()))

	rateLimit, err := getRateLimitFromEnv()
	if err != nil {
		return nil, app.closeAfter(ctx, err)
	}

	if GetLogLevelFromEnv() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	app.handler, err = web.NewHandler(
		authSvc,
		tokens,
		contentsSvc,
		interactionsSvc,
		cookieStore,
		sessionName,
		env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		env.GetStringSlice("TRUSTED_PROXIES", []string{}),
		rateLimit,
	)
	if err != nil {
		return nil, app.closeAfter(ctx, err)
	}

	return app, nil
}

func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer app.close(context.WithoutCancel(ctx))

	err := app.server.Run(ctx, app.handler)
	if err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	return nil
}

func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		err := app.closers[i](ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to release resource", "error", err)
		}
	}
}

func (app *App) closeAfter(ctx context.Context, err error) error {
	app.close(ctx)

	return err
}

// newUserDirectory puts a redis cache in front of user lookups when
// REDIS_ADDR is set.
func (app *App) newUserDirectory(ctx context.Context, authSvc *authentication.Service) (interactions.UserDirectory, error) {
	addr := env.GetString("REDIS_ADDR", "")
	if addr == "" {
		return authSvc, nil
	}

	ttl, err := getDurationFromEnv("AUTHOR_CACHE_TTL", cache.DefaultTTL)
	if err != nil {
		return nil, err
	}

	client, err := cache.NewRedisClient(ctx, addr)
	if err != nil {
		return nil, err
	}

	app.closers = append(app.closers, func(context.Context) error { return client.Close() })

	return cache.NewUserCache(client, authSvc, ttl), nil
}

// newPublisher sends events to rabbitmq when AMQP_URL is set and only logs
// them otherwise.
func (app *App) newPublisher() (interactions.Publisher, error) {
	url := env.GetString("AMQP_URL", "")
	if url == "" {
		return interactions.LogPublisher{}, nil
	}

	publisher, err := rabbitmq.NewPublisher(url, env.GetString("AMQP_EXCHANGE", rabbitmq.DefaultExchange))
	if err != nil {
		return nil, err
	}

	app.closers = append(app.closers, func(context.Context) error { return publisher.Close() })

	return publisher, nil
}

type storage struct {
	users        authentication.UserRepository
	sessions     authentication.SessionRepository
	posts        contents.PostRepository
	interactions interactions.Repository
	close        func(ctx context.Context) error
}

func openStorage(ctx context.Context) (*storage, error) {
	driver := env.GetString("DB_DRIVER", DriverSQLite)

	switch driver {
	case DriverSQLite:
		db, err := sqlite3.NewDB(ctx, env.GetString("DB_DSN", "file::memory:?cache=shared"))
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}

		err = sqlite3.MigrateUp(ctx, db)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to run database migrations: %w", err), db.Close())
		}

		return &storage{
			users:        sqlstore.NewUserRepository(db, sqlite3.Dialect),
			sessions:     sqlstore.NewSessionRepository(db, sqlite3.Dialect),
			posts:        sqlstore.NewPostRepository(db, sqlite3.Dialect),
			interactions: sqlstore.NewInteractionRepository(db, sqlite3.Dialect),
			close:        func(context.Context) error { return db.Close() },
		}, nil
	case DriverPostgres:
		db, err := postgres.NewDB(ctx, env.GetString("DB_DSN", ""))
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}

		err = postgres.MigrateUp(ctx, db)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to run database migrations: %w", err), db.Close())
		}

		return &storage{
			users:        sqlstore.NewUserRepository(db, postgres.Dialect),
			sessions:     sqlstore.NewSessionRepository(db, postgres.Dialect),
			posts:        sqlstore.NewPostRepository(db, postgres.Dialect),
			interactions: sqlstore.NewInteractionRepository(db, postgres.Dialect),
			close:        func(context.Context) error { return db.Close() },
		}, nil
	case DriverMongoDB:
		client, err := mongodb.NewClient(ctx, env.GetString("DB_DSN", "mongodb://localhost:27017/?replicaSet=rs0"))
		if err != nil {
			return nil, err
		}

		db := client.Database(env.GetString("MONGODB_DATABASE", "agora"))

		err = mongodb.EnsureIndexes(ctx, db)
		if err != nil {
			return nil, errors.Join(err, client.Disconnect(ctx))
		}

		return &storage{
			users:        mongodb.NewUserRepository(db),
			sessions:     mongodb.NewSessionRepository(db),
			posts:        mongodb.NewPostRepository(db),
			interactions: mongodb.NewInteractionRepository(db),
			close:        client.Disconnect,
		}, nil
	default:
		return nil, &UnknownDriverError{Driver: driver}
	}
}

func newServer() *server.Server {
	server := &server.Server{
		Port: env.GetString("PORT", server.DefaultPort),
		Host: env.GetString("HOST", ""),
		TLS: server.ServerTLS{
			Enabled: env.GetBool("TLS_ENABLED", false),
			Mode:    env.GetString("TLS_MODE", server.DefaultTLSMode),
			AutoCert: &server.ServerTLSAutoCert{
				CacheDir: env.GetString("TLS_AUTOCERT_CACHE_DIR", "./cert-cache"),
				Domains:  env.GetStringSlice("TLS_AUTOCERT_DOMAINS", []string{}),
				Email:    env.GetString("TLS_AUTOCERT_EMAIL", ""),
			},
			CertFile: env.GetString("TLS_CERT_FILE", ""),
			KeyFile:  env.GetString("TLS_KEY_FILE", ""),
		},
	}

	return server
}

func getDurationFromEnv(key string, def time.Duration) (time.Duration, error) {
	value := env.GetString(key, "")
	if value == "" {
		return def, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}

	return d, nil
}

func getRateLimitFromEnv() (web.RateLimit, error) {
	var rateLimit web.RateLimit

	if value := env.GetString("RATE_LIMIT_RPS", ""); value != "" {
		rps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return rateLimit, fmt.Errorf("failed to parse RATE_LIMIT_RPS: %w", err)
		}

		rateLimit.RequestsPerSecond = rps
	}

	if value := env.GetString("RATE_LIMIT_BURST", ""); value != "" {
		burst, err := strconv.Atoi(value)
		if err != nil {
			return rateLimit, fmt.Errorf("failed to parse RATE_LIMIT_BURST: %w", err)
		}

		rateLimit.Burst = burst
	}

	return rateLimit, nil
}

func GetLogLevelFromEnv() slog.Level {
	levelStr := env.GetString("LOG_LEVEL", "info")
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", levelStr)

		return slog.LevelInfo
	}
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: GetLogLevelFromEnv()}

	switch format := env.GetString("LOG_FORMAT", "text"); format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "text":
		return slog.New(slog.NewTextHandler(w, opts))
	default:
		slog.Warn("unknown log format, defaulting to text", "format", format)

		return slog.New(slog.NewTextHandler(w, opts))
	}
}
