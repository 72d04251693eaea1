package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/linemk/datashop/internal/config"
	"github.com/linemk/datashop/internal/recommender"
)

type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *sql.DB
	Redis       *redis.Client // nil, если кеш не настроен
	Recommender recommender.Provider
}

// NewApp создаёт новый экземпляр App. Без БД приложение не стартует,
// недоступный redis только отключает кеш рекомендаций.
func NewApp(log *slog.Logger, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", DSN(cfg.Database))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	app := &App{
		Config: cfg,
		Logger: log,
		DB:     db,
	}

	recs := recommender.NewClient(log, cfg.Recommender.BaseURL, cfg.Recommender.Timeout)
	if rdb := connectRedis(log, cfg.Redis); rdb != nil {
		app.Redis = rdb
		recs = recommender.NewCached(log, recs, rdb, cfg.Redis.TTL)
	}
	app.Recommender = recs

	return app, nil
}

// DSN реализуем подключение к БД через DSN
func DSN(db config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		db.User,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
	)
}

func connectRedis(log *slog.Logger, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Info("redis address is empty, recommendation cache disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis is unavailable, recommendation cache disabled", slog.Any("error", err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis", slog.Any("error", err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("failed to close database", slog.Any("error", err))
	}
}
