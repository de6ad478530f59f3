package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/config"
	"github.com/riftproxy/riftproxy/internal/core/cache"
	"github.com/riftproxy/riftproxy/internal/core/engine"
	"github.com/riftproxy/riftproxy/internal/core/store"
	"github.com/riftproxy/riftproxy/internal/core/upstream"
	"github.com/riftproxy/riftproxy/internal/metrics"
)

// proxyRuntime is the assembled cache, gate, upstream client and
// coordinator shared by serve and the lookup commands.
type proxyRuntime struct {
	cfg         *config.Config
	persister   cache.Persister
	cache       *cache.EntityCache
	gate        *engine.RateGate
	client      *upstream.Client
	coordinator *engine.Coordinator
	logger      *logging.Logger
}

// openRuntime loads the entity cache from the configured persister and wires
// the coordinator around it. Close releases the persister.
func openRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*proxyRuntime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	persister, err := store.OpenPersister(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	entities, err := cache.Load(ctx, persister)
	if err != nil {
		_ = persister.Close()
		return nil, fmt.Errorf("load entity cache: %w", err)
	}
	metrics.SetCacheSize(len(entities.Summoners()), entities.Catalog().Len())

	client := &upstream.Client{
		HTTP:        &http.Client{Timeout: cfg.Upstream.Timeout},
		PlatformURL: cfg.Upstream.PlatformURL,
		StaticURL:   cfg.Upstream.StaticURL,
		Locale:      cfg.Upstream.Locale,
		Logger:      logger,
	}
	gate := engine.NewRateGate(client.PlatformHost())
	client.Observer = gate

	if logger != nil {
		logger.Debug("Entity cache loaded",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("summoners", len(entities.Summoners())),
			zap.Int("champions", entities.Catalog().Len()),
			zap.String("static_version", entities.StaticVersion().Value),
			zap.String("rate_host", gate.Host))
	}

	return &proxyRuntime{
		cfg:       cfg,
		persister: persister,
		cache:     entities,
		gate:      gate,
		client:    client,
		coordinator: &engine.Coordinator{
			Cache:    entities,
			Gate:     gate,
			Upstream: client,
			Logger:   logger,
		},
		logger: logger,
	}, nil
}

// APIKey returns the configured upstream API key.
func (r *proxyRuntime) APIKey() string {
	return r.cfg.Upstream.APIKey
}

// Close flushes the summoner table and releases the persister.
func (r *proxyRuntime) Close(ctx context.Context) error {
	if r == nil || r.cache == nil {
		return nil
	}
	flushErr := r.cache.FlushSummoners(ctx)
	if flushErr != nil && r.logger != nil {
		r.logger.Warn("Final summoner flush failed", zap.Error(flushErr))
	}
	return errors.Join(flushErr, r.cache.Close())
}

// withRuntime loads config, opens the runtime and runs fn against it.
func withRuntime(ctx context.Context, fn func(rt *proxyRuntime) error) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cfg, cliLogger())
	if err != nil {
		return err
	}
	runErr := fn(rt)
	closeErr := rt.Close(context.WithoutCancel(ctx))
	if runErr != nil {
		return runErr
	}
	return closeErr
}
