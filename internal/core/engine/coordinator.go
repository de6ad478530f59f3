package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/riftproxy/riftproxy/internal/core"
	"github.com/riftproxy/riftproxy/internal/core/cache"
	"github.com/riftproxy/riftproxy/internal/core/upstream"
	"github.com/riftproxy/riftproxy/internal/metrics"
)

// UnknownChampionName labels masteries whose champion is not in the catalog.
const UnknownChampionName = "NO CHAMP"

// Upstream performs a single upstream call.
type Upstream interface {
	Call(ctx context.Context, endpoint upstream.Endpoint, params map[string]string, apiKey string) (json.RawMessage, error)
}

// Coordinator serves lookups from the entity cache and falls back to gated
// upstream calls on a miss.
type Coordinator struct {
	Cache    *cache.EntityCache
	Gate     *RateGate
	Upstream Upstream
	Logger   *logging.Logger
	// Intn picks the random champion index. Defaults to math/rand/v2.
	Intn func(n int) int

	flights singleflight.Group
}

// StaticRefresh is the outcome of a static data refresh.
type StaticRefresh struct {
	Version core.StaticVersion
	Catalog core.ChampionCatalog
	// Updated is set when a new catalog was fetched and stored.
	Updated bool
	// Fallback is set when upstream failed and the stored data was returned.
	Fallback bool
}

// MasteryReport is the mastery list of one summoner.
type MasteryReport struct {
	SummonerID   string                 `json:"summonerId"`
	SummonerName string                 `json:"name"`
	Masteries    []core.ChampionMastery `json:"data"`
}

// ResolveSummonerByName returns the cached summoner or fetches it upstream.
func (c *Coordinator) ResolveSummonerByName(ctx context.Context, name string, apiKey string) (core.Summoner, error) {
	if err := c.validate(); err != nil {
		return core.Summoner{}, err
	}
	key := core.NormalizeName(name)
	if key == "" {
		return core.Summoner{}, badRequest(upstream.SummonerByName.Name, "summoner name is required")
	}

	if s, ok := c.Cache.LookupSummonerByName(name); ok {
		metrics.RecordCacheLookup("summoner_by_name", true)
		return s, nil
	}
	metrics.RecordCacheLookup("summoner_by_name", false)

	return c.flight(ctx, "name:"+key, upstream.SummonerByName.Name, func(ctx context.Context) (core.Summoner, error) {
		if s, ok := c.Cache.LookupSummonerByName(name); ok {
			return s, nil
		}
		return c.fetchSummoner(ctx, upstream.SummonerByName, map[string]string{upstream.ParamSummonerName: strings.TrimSpace(name)}, apiKey)
	})
}

// ResolveSummonerByID returns the cached summoner or fetches it upstream.
func (c *Coordinator) ResolveSummonerByID(ctx context.Context, id string, apiKey string) (core.Summoner, error) {
	if err := c.validate(); err != nil {
		return core.Summoner{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Summoner{}, badRequest(upstream.SummonerByID.Name, "summoner id is required")
	}

	if s, ok := c.Cache.LookupSummonerByID(id); ok {
		metrics.RecordCacheLookup("summoner_by_id", true)
		return s, nil
	}
	metrics.RecordCacheLookup("summoner_by_id", false)

	return c.flight(ctx, "id:"+id, upstream.SummonerByID.Name, func(ctx context.Context) (core.Summoner, error) {
		if s, ok := c.Cache.LookupSummonerByID(id); ok {
			return s, nil
		}
		return c.fetchSummoner(ctx, upstream.SummonerByID, map[string]string{upstream.ParamSummonerID: id}, apiKey)
	})
}

// RefreshSummonerByName fetches the summoner upstream regardless of the cache
// and upserts the result.
func (c *Coordinator) RefreshSummonerByName(ctx context.Context, name string, apiKey string) (core.Summoner, error) {
	if err := c.validate(); err != nil {
		return core.Summoner{}, err
	}
	key := core.NormalizeName(name)
	if key == "" {
		return core.Summoner{}, badRequest(upstream.SummonerByName.Name, "summoner name is required")
	}

	return c.flight(ctx, "refresh:"+key, upstream.SummonerByName.Name, func(ctx context.Context) (core.Summoner, error) {
		return c.fetchSummoner(ctx, upstream.SummonerByName, map[string]string{upstream.ParamSummonerName: strings.TrimSpace(name)}, apiKey)
	})
}

// MasteriesBySummonerID fetches champion masteries for a summoner and labels
// each entry with the champion name from the local catalog.
func (c *Coordinator) MasteriesBySummonerID(ctx context.Context, id string, apiKey string) (MasteryReport, error) {
	if err := c.validate(); err != nil {
		return MasteryReport{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return MasteryReport{}, badRequest(upstream.MasteriesBySummoner.Name, "summoner id is required")
	}

	body, err := c.gatedCall(ctx, upstream.MasteriesBySummoner, map[string]string{upstream.ParamSummonerID: id}, apiKey)
	if err != nil {
		return MasteryReport{}, err
	}

	var masteries []core.ChampionMastery
	if err := json.Unmarshal(body, &masteries); err != nil {
		return MasteryReport{}, malformed(upstream.MasteriesBySummoner.Name, err)
	}

	catalog := c.Cache.Catalog()
	for i := range masteries {
		name, ok := catalog.NameByExternalID(masteries[i].ChampionID)
		if !ok {
			name = UnknownChampionName
		}
		masteries[i].ChampionName = name
	}
	if masteries == nil {
		masteries = []core.ChampionMastery{}
	}

	report := MasteryReport{SummonerID: id, Masteries: masteries}
	if s, ok := c.Cache.LookupSummonerByID(id); ok {
		report.SummonerName = s.Name
	}
	return report, nil
}

// ChampionInfo looks up a catalog entry ignoring case and spaces.
func (c *Coordinator) ChampionInfo(name string) (string, core.ChampionEntry, error) {
	if err := c.validate(); err != nil {
		return "", core.ChampionEntry{}, err
	}
	key, entry, ok := c.Cache.LookupChampion(name)
	if !ok {
		return "", core.ChampionEntry{}, &core.UpstreamError{
			Kind:     core.KindNotFound,
			Endpoint: "champion",
			Err:      fmt.Errorf("champion %q not found", strings.TrimSpace(name)),
		}
	}
	return key, entry, nil
}

// RandomChampion picks a catalog entry uniformly over the sorted key order.
func (c *Coordinator) RandomChampion() (string, core.ChampionEntry, error) {
	if err := c.validate(); err != nil {
		return "", core.ChampionEntry{}, err
	}
	catalog := c.Cache.Catalog()
	keys := catalog.Keys()
	if len(keys) == 0 {
		return "", core.ChampionEntry{}, &core.UpstreamError{
			Kind:     core.KindNotFound,
			Endpoint: "champion",
			Err:      errors.New("champion catalog is empty"),
		}
	}

	intn := c.Intn
	if intn == nil {
		intn = rand.IntN
	}
	idx := intn(len(keys))
	if idx < 0 || idx >= len(keys) {
		idx = 0
	}
	key := keys[idx]
	return key, catalog.Data[key], nil
}

// RefreshStaticData checks the upstream version and refetches the catalog
// when it differs from the stored one. On upstream failure the stored data is
// returned with Fallback set alongside the error.
func (c *Coordinator) RefreshStaticData(ctx context.Context, apiKey string) (StaticRefresh, error) {
	if err := c.validate(); err != nil {
		return StaticRefresh{}, err
	}

	v, err := c.share(ctx, "static", "static_data", func(ctx context.Context) (any, error) {
		return c.refreshStatic(ctx, apiKey)
	})
	refresh, _ := v.(StaticRefresh)
	return refresh, err
}

func (c *Coordinator) refreshStatic(ctx context.Context, apiKey string) (StaticRefresh, error) {
	storedVersion := c.Cache.StaticVersion()
	storedCatalog := c.Cache.Catalog()
	fallback := func(cause error) (StaticRefresh, error) {
		metrics.RecordStaticRefresh("fallback")
		c.warn("Static data refresh failed, using stored catalog",
			zap.String("stored_version", storedVersion.Value),
			zap.Int("champions", storedCatalog.Len()),
			zap.Error(cause),
		)
		return StaticRefresh{Version: storedVersion, Catalog: storedCatalog, Fallback: true}, cause
	}

	body, err := c.call(ctx, upstream.StaticVersions, nil, apiKey)
	if err != nil {
		return fallback(err)
	}
	var versions []string
	if err := json.Unmarshal(body, &versions); err != nil {
		return fallback(malformed(upstream.StaticVersions.Name, err))
	}
	if len(versions) == 0 || strings.TrimSpace(versions[0]) == "" {
		return fallback(malformed(upstream.StaticVersions.Name, errors.New("version list is empty")))
	}
	latest := strings.TrimSpace(versions[0])

	if latest == storedVersion.Value && storedCatalog.Len() > 0 {
		metrics.RecordStaticRefresh("current")
		return StaticRefresh{Version: storedVersion, Catalog: storedCatalog}, nil
	}

	body, err = c.call(ctx, upstream.StaticChampions, map[string]string{upstream.ParamVersion: latest}, apiKey)
	if err != nil {
		return fallback(err)
	}
	var catalog core.ChampionCatalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return fallback(malformed(upstream.StaticChampions.Name, err))
	}
	if catalog.Version == "" {
		catalog.Version = latest
	}

	version := core.StaticVersion{Value: latest}
	c.Cache.ReplaceStatic(version, catalog)
	if err := c.Cache.FlushStatic(ctx); err != nil {
		metrics.RecordFlushFailure("static")
		c.warn("Failed to persist static data", zap.String("version", latest), zap.Error(err))
	}

	metrics.RecordStaticRefresh("updated")
	metrics.SetCacheSize(len(c.Cache.Summoners()), catalog.Len())
	c.info("Static data updated",
		zap.String("previous_version", storedVersion.Value),
		zap.String("version", latest),
		zap.Int("champions", catalog.Len()),
	)
	return StaticRefresh{Version: version, Catalog: c.Cache.Catalog(), Updated: true}, nil
}

func (c *Coordinator) fetchSummoner(ctx context.Context, endpoint upstream.Endpoint, params map[string]string, apiKey string) (core.Summoner, error) {
	body, err := c.gatedCall(ctx, endpoint, params, apiKey)
	if err != nil {
		return core.Summoner{}, err
	}

	var fetched core.Summoner
	if err := json.Unmarshal(body, &fetched); err != nil {
		return core.Summoner{}, malformed(endpoint.Name, err)
	}
	if fetched.ID == "" {
		return core.Summoner{}, malformed(endpoint.Name, errors.New("summoner id missing from response"))
	}

	result, err := c.Cache.UpsertSummoner(fetched)
	if err != nil {
		return core.Summoner{}, err
	}
	if err := c.Cache.FlushSummoners(ctx); err != nil {
		metrics.RecordFlushFailure("summoners")
		c.warn("Failed to persist summoners", zap.String("summoner_id", fetched.ID), zap.Error(err))
	}

	c.debug("Summoner upserted", zap.String("summoner_id", fetched.ID), zap.String("result", result.String()))

	stored, ok := c.Cache.LookupSummonerByID(fetched.ID)
	if !ok {
		return fetched, nil
	}
	return stored, nil
}

func (c *Coordinator) gatedCall(ctx context.Context, endpoint upstream.Endpoint, params map[string]string, apiKey string) (json.RawMessage, error) {
	if !c.Gate.Decide() {
		metrics.RecordRateGateBlocked(endpoint.Name)
		c.debug("Upstream call blocked by rate gate", zap.String("endpoint", endpoint.Name))
		return nil, core.NewLocalRateLimited(endpoint.Name)
	}
	return c.call(ctx, endpoint, params, apiKey)
}

func (c *Coordinator) call(ctx context.Context, endpoint upstream.Endpoint, params map[string]string, apiKey string) (json.RawMessage, error) {
	start := time.Now()
	body, err := c.Upstream.Call(ctx, endpoint, params, apiKey)
	outcome := "ok"
	if err != nil {
		outcome = core.KindOf(err).String()
	}
	metrics.RecordUpstreamCall(endpoint.Name, outcome, time.Since(start))
	return body, err
}

func (c *Coordinator) flight(ctx context.Context, key, endpoint string, fn func(context.Context) (core.Summoner, error)) (core.Summoner, error) {
	v, err := c.share(ctx, key, endpoint, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return core.Summoner{}, err
	}
	s, _ := v.(core.Summoner)
	return s, nil
}

// share runs fn once per key for all concurrent callers. fn gets a context
// detached from the caller that started the flight, bounded by the upstream
// client timeout; each caller stops waiting when its own ctx is done.
func (c *Coordinator) share(ctx context.Context, key, endpoint string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, &core.UpstreamError{Kind: core.KindNetworkFailure, Endpoint: endpoint, Err: ctx.Err()}
	}
}

func (c *Coordinator) validate() error {
	if c == nil || c.Cache == nil || c.Upstream == nil {
		return errors.New("coordinator is not configured")
	}
	return nil
}

func (c *Coordinator) info(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Info(msg, fields...)
	}
}

func (c *Coordinator) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

func (c *Coordinator) debug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func badRequest(endpoint, msg string) error {
	return &core.UpstreamError{Kind: core.KindBadRequest, Endpoint: endpoint, Err: errors.New(msg)}
}

func malformed(endpoint string, err error) error {
	return &core.UpstreamError{Kind: core.KindMalformedResponse, Endpoint: endpoint, Err: err}
}
