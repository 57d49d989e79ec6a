package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"faculty-quiz-service/internal/app"
	"faculty-quiz-service/internal/config"
	"faculty-quiz-service/internal/infra/gemini"
	"faculty-quiz-service/internal/infra/memory"
	pgmirror "faculty-quiz-service/internal/infra/postgres"
	redisstore "faculty-quiz-service/internal/infra/redis"
)

// backends holds the infrastructure chosen from config; Close releases whatever was opened.
type backends struct {
	source   app.QuestionSource
	kv       app.KVProvider
	sessions app.SessionRepository
	mirror   app.AttemptMirror

	redis *redis.Client
	pool  *pgxpool.Pool
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func newQuestionSource(cfg config.Config, logger *zap.Logger) app.QuestionSource {
	if cfg.Gemini.APIKey == "" {
		logger.Warn("no gemini api key configured, serving the sample batch")
		return memory.NewStaticQuestionSource(memory.SampleBatch())
	}
	return gemini.NewQuestionSource(gemini.Config{
		APIKey:        cfg.Gemini.APIKey,
		BaseURL:       cfg.Gemini.BaseURL,
		Model:         cfg.Gemini.Model,
		Timeout:       config.TTLDuration(cfg.Gemini.Timeout, 90*time.Second),
		Retries:       cfg.Gemini.Retries,
		QuestionCount: cfg.Gemini.QuestionCount,
	}, logger.Named("gemini"))
}

func newMirror(ctx context.Context, cfg config.Config, b *backends) (app.AttemptMirror, error) {
	if cfg.Postgres.URL == "" {
		return app.NopMirror{}, nil
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}
	b.pool = pool
	ttl := config.TTLDuration(cfg.Quiz.LeaderboardTTL, 15*time.Second)
	return memory.NewLeaderboardCache(pgmirror.NewAttemptMirror(pool), ttl), nil
}

func newBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{source: newQuestionSource(cfg, logger)}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.kv = redisstore.NewKVStore(b.redis, config.TTLDuration(cfg.Redis.KVTTL, 0))
		b.sessions = redisstore.NewSessionStore(b.redis, sessionMarkerTTL(cfg), cfg.Server.Instance)
	} else {
		b.kv = memory.NewKVStore()
		b.sessions = memory.NewSessionStore()
	}

	mirror, err := newMirror(ctx, cfg, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.mirror = mirror
	return b, nil
}

// sessionMarkerTTL keeps a device marker alive through a whole quiz plus the configured idle ttl.
func sessionMarkerTTL(cfg config.Config) time.Duration {
	return config.TTLDuration(cfg.Quiz.Duration, app.DefaultQuizDuration) + config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
}

func serviceConfig(cfg config.Config) app.ServiceConfig {
	return app.ServiceConfig{
		Controller: app.ControllerConfig{
			Duration:         config.TTLDuration(cfg.Quiz.Duration, app.DefaultQuizDuration),
			WarningThreshold: config.TTLDuration(cfg.Quiz.Warning, 0),
			TickInterval:     config.TTLDuration(cfg.Quiz.Tick, 0),
			RequireIdentity:  cfg.Quiz.RequireIdentity,
		},
		Attempts: app.AttemptStoreConfig{
			LocalLimit:  cfg.Quiz.RecentLimit,
			GlobalLimit: cfg.Quiz.GlobalLimit,
		},
	}
}
