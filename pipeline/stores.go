package pipeline

import (
	"context"
	"fmt"

	"github.com/lucasjlepore/empatica-analyzer/config"
	"github.com/lucasjlepore/empatica-analyzer/peakcache"
	"github.com/lucasjlepore/empatica-analyzer/results"
)

// OpenStore builds the cache backend named in cfg. The returned close
// function is never nil.
func OpenStore(ctx context.Context, cfg config.CacheConfig, env *config.Env) (peakcache.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "file":
		return &peakcache.FileStore{Dir: cfg.Dir}, noop, nil
	case "memory":
		return peakcache.NewMemoryStore(), noop, nil
	case "redis":
		if env == nil {
			return nil, noop, fmt.Errorf("redis cache needs environment settings")
		}
		client, err := peakcache.NewRedisClient(ctx, peakcache.RedisOptions{
			Addr:     env.RedisAddr,
			Password: env.RedisPassword,
			DB:       env.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return peakcache.NewRedisStore(client, cfg.Prefix), client.Close, nil
	case "s3":
		if env == nil {
			return nil, noop, fmt.Errorf("s3 cache needs environment settings")
		}
		if err := env.RequireS3(); err != nil {
			return nil, noop, err
		}
		s, err := peakcache.NewS3Store(peakcache.S3Options{
			Endpoint:  env.S3Endpoint,
			AccessKey: env.S3AccessKey,
			SecretKey: env.S3SecretKey,
			Bucket:    env.S3Bucket,
			Prefix:    cfg.Prefix,
			Secure:    env.S3Secure,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// OpenResults opens the results store named in cfg, nil when disabled. The
// DSN from the environment wins over the study file.
func OpenResults(cfg config.ResultsConfig, env *config.Env) (*results.Store, error) {
	if cfg.Driver == "" {
		return nil, nil
	}
	dsn := cfg.DSN
	if env != nil && env.ResultsDSN != "" {
		dsn = env.ResultsDSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("results driver %s needs a dsn", cfg.Driver)
	}
	return results.Open(cfg.Driver, dsn)
}
