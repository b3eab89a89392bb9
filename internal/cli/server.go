package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/auth"
	"maihome-survey-service/internal/config"
	"maihome-survey-service/internal/infra/memory"
	"maihome-survey-service/internal/infra/postgres"
	redisstore "maihome-survey-service/internal/infra/redis"
	"maihome-survey-service/internal/infra/sqlite"
	"maihome-survey-service/internal/infra/webpush"
	"maihome-survey-service/internal/logging"
	transport "maihome-survey-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the survey API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// repositories groups the survey stores of one backend.
type repositories struct {
	houses      app.HouseRepository
	sets        app.QuestionSetRepository
	assignments app.AssignmentRepository
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	repos := newRepositories(pool, log)

	questionTTL := config.TTLDuration(cfg.Cache.QuestionTTL, 10*time.Minute)
	var cache app.QuestionCache
	if redisClient != nil {
		cache = redisstore.NewQuestionCache(redisClient, repos.sets, questionTTL)
	} else {
		cache = memory.NewQuestionCache(repos.sets, questionTTL)
	}

	subs, closeSubs, err := openSubscriptions(ctx, cfg, pool, redisClient, log)
	if err != nil {
		return err
	}
	defer closeSubs()

	tokens, err := auth.NewTokens(jwtSecret(cfg, log), config.TTLDuration(cfg.Auth.TokenTTL, auth.DefaultTTL))
	if err != nil {
		return err
	}
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)

	keys, err := vapidKeys(cfg, log)
	if err != nil {
		return err
	}
	deliverer := webpush.NewDeliverer(keys, config.TTLDuration(cfg.Push.TTL, webpush.DefaultTTL), nil)

	dispatcher := app.NewDispatcher(subs, deliverer, keys.PublicKey, cfg.Push.Concurrency, log)
	engine := app.NewSurveyEngine(repos.assignments, cache, log)
	handler := transport.NewHandler(transport.Deps{
		Auth: app.NewAuthService(repos.houses, hasher, tokens, app.AdminCredentials{
			Username:     cfg.Auth.AdminUsername,
			PasswordHash: cfg.Auth.AdminPasswordHash,
		}, log),
		Houses:       app.NewHouseService(repos.houses, hasher, dispatcher, log),
		QuestionSets: app.NewQuestionSetService(repos.sets, cache, log),
		Surveys:      engine,
		Sender:       app.NewSurveySender(repos.sets, engine, dispatcher, log),
		Dispatcher:   dispatcher,
		Tokens:       tokens,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Log:          log,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	go func() {
		log.Info("starting survey service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newRepositories(pool *pgxpool.Pool, log *zap.Logger) repositories {
	if pool == nil {
		log.Warn("no postgres configured; survey data lives in memory and is lost on restart")
		store := memory.NewStore()
		return repositories{houses: store.Houses(), sets: store.QuestionSets(), assignments: store.Assignments()}
	}
	return repositories{
		houses:      postgres.NewHouseRepository(pool),
		sets:        postgres.NewQuestionSetRepository(pool),
		assignments: postgres.NewAssignmentRepository(pool),
	}
}

// openSubscriptions picks the push subscription registry named by config.
func openSubscriptions(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, client *redis.Client, log *zap.Logger) (app.SubscriptionRepository, func(), error) {
	noop := func() {}
	backend := cfg.SubscriptionStore()
	log.Info("subscription registry", zap.String("backend", backend))

	switch backend {
	case config.StorePostgres:
		if pool == nil {
			return nil, noop, fmt.Errorf("push store %q needs postgres.url", backend)
		}
		return postgres.NewSubscriptionStore(pool), noop, nil
	case config.StoreRedis:
		if client == nil {
			return nil, noop, fmt.Errorf("push store %q needs redis.addr", backend)
		}
		return redisstore.NewSubscriptionStore(client), noop, nil
	case config.StoreSQLite:
		if err := os.MkdirAll(dirOf(cfg.Push.SQLitePath), 0o755); err != nil {
			return nil, noop, err
		}
		store, err := sqlite.Open(ctx, cfg.Push.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StoreMemory:
		return memory.NewSubscriptionStore(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown push store %q", backend)
}

func jwtSecret(cfg config.Config, log *zap.Logger) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	buf := make([]byte, 32)
	_, _ = io.ReadFull(rand.Reader, buf)
	log.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	return hex.EncodeToString(buf)
}

// vapidKeys returns the configured key pair or a temporary one when none is set.
func vapidKeys(cfg config.Config, log *zap.Logger) (webpush.VAPID, error) {
	keys := webpush.VAPID{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Subject:    cfg.Push.Subject,
	}
	if keys.PublicKey != "" && keys.PrivateKey != "" {
		return keys, nil
	}
	pub, priv, err := webpush.GenerateKeys()
	if err != nil {
		return keys, err
	}
	keys.PublicKey, keys.PrivateKey = pub, priv
	log.Warn("VAPID keys not configured; generated a temporary pair, run `survey-service vapid generate` for persistent keys",
		zap.String("public_key", pub))
	return keys, nil
}
