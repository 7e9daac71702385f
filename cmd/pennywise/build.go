package main

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	pennywise "github.com/pennywise-ai/pennywise"
	"github.com/pennywise-ai/pennywise/internal/config"
	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/internal/runtime"
	"github.com/pennywise-ai/pennywise/pkg/adapters/memory"
	"github.com/pennywise-ai/pennywise/pkg/adapters/openai"
	"github.com/pennywise-ai/pennywise/pkg/adapters/plaid"
	"github.com/pennywise-ai/pennywise/pkg/adapters/redis"
	"github.com/pennywise-ai/pennywise/pkg/adapters/staticdata"
	"github.com/pennywise-ai/pennywise/pkg/persistence/middleware"
	"github.com/pennywise-ai/pennywise/pkg/ports"
	"github.com/pennywise-ai/pennywise/pkg/steps"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLogger(cfg config.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.Format == "json" {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}

// buildAgent assembles the agent from configuration: storage backend,
// gateway backend, model client, and engine tuning.
func buildAgent(cfg config.Config, logger *slog.Logger, extra ...pennywise.Option) (*pennywise.Agent, error) {
	opts := []pennywise.Option{
		pennywise.WithLogger(logger),
		pennywise.WithEngineOptions(
			runtime.WithMaxSteps(cfg.Engine.MaxSteps),
			runtime.WithTurnTimeout(cfg.Engine.TurnTimeout),
			runtime.WithCacheTTL(cfg.Engine.CacheTTL),
			runtime.WithRetryPolicy(runtime.RetryPolicy{
				MaxAttempts:     cfg.Engine.Retry.MaxAttempts,
				InitialInterval: cfg.Engine.Retry.InitialInterval,
				MaxInterval:     cfg.Engine.Retry.MaxInterval,
			}),
		),
	}

	var store ports.SnapshotStore
	if cfg.Store.Backend == "redis" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		store = redis.NewFromClient(client, redis.WithTTL(cfg.Store.Redis.TTL))
		opts = append(opts,
			pennywise.WithCallCache(redis.NewCache(client, redis.WithCacheTTL(cfg.Engine.CacheTTL))),
			pennywise.WithLocker(redis.NewLocker(client, "")),
		)
	} else {
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(cfg.Store.MaskVars) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Store.MaskVars))
	}
	if cfg.Store.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	opts = append(opts, pennywise.WithStore(middleware.Chain(store, mws...)))

	var gateway ports.DataGateway
	switch cfg.Gateway.Backend {
	case "static":
		gw, err := staticdata.Load(cfg.Gateway.Static.Fixture)
		if err != nil {
			return nil, fmt.Errorf("load fixture: %w", err)
		}
		gateway = gw
	default:
		plaidOpts := []plaid.ClientOption{plaid.WithLogger(logger)}
		if cfg.Gateway.Plaid.Environment == "production" {
			plaidOpts = append(plaidOpts, plaid.WithBaseURL(plaid.EnvProduction))
		}
		gateway = plaid.New(cfg.Gateway.Plaid.ClientID, cfg.Gateway.Plaid.Secret, plaidOpts...)
	}
	opts = append(opts, pennywise.WithGateway(gateway))

	modelOpts := []openai.ClientOption{
		openai.WithModel(cfg.Model.Model),
		openai.WithTemperature(cfg.Model.Temperature),
		openai.WithBaseURL(cfg.Model.BaseURL),
		openai.WithLogger(logger),
	}
	opts = append(opts, pennywise.WithModel(openai.New(cfg.Model.APIKey, modelOpts...)))

	stepOpts, err := stepOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, pennywise.WithStepOptions(stepOpts))

	return pennywise.New(append(opts, extra...)...)
}

// stepOptions flattens the per-step option maps into the shared graph
// options. Later entries win on key collisions.
func stepOptions(cfg config.Config) (steps.Options, error) {
	merged := make(map[string]any)
	for _, section := range cfg.Steps {
		for k, v := range section {
			merged[k] = v
		}
	}
	opts, err := steps.DecodeOptions(merged)
	if err != nil {
		return steps.Options{}, fmt.Errorf("step options: %w", err)
	}
	return opts, nil
}
