package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/riftproxy/riftproxy/internal/core"
)

// Persister mirrors cache state to durable storage. Load methods return a
// zero value with a nil error when nothing has been stored yet.
type Persister interface {
	LoadSummoners(ctx context.Context) ([]core.Summoner, error)
	SaveSummoners(ctx context.Context, summoners []core.Summoner) error
	LoadStaticVersion(ctx context.Context) (core.StaticVersion, error)
	SaveStaticVersion(ctx context.Context, version core.StaticVersion) error
	LoadCatalog(ctx context.Context) (core.ChampionCatalog, error)
	SaveCatalog(ctx context.Context, catalog core.ChampionCatalog) error
	Close() error
}

// UpsertResult reports whether an upsert created or updated a record.
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Updated
)

func (r UpsertResult) String() string {
	if r == Updated {
		return "updated"
	}
	return "inserted"
}

// EntityCache owns summoner and static reference data in memory.
type EntityCache struct {
	persister Persister

	// flushMu orders snapshot and save so an older snapshot never lands
	// after a newer one.
	flushMu sync.Mutex

	mu        sync.RWMutex
	summoners []core.Summoner
	byID      map[string]int
	version   core.StaticVersion
	catalog   core.ChampionCatalog
}

// New creates an empty cache backed by the persister. A nil persister keeps
// state in memory only.
func New(persister Persister) *EntityCache {
	return &EntityCache{
		persister: persister,
		byID:      map[string]int{},
		catalog:   core.ChampionCatalog{Data: map[string]core.ChampionEntry{}},
	}
}

// Load creates a cache and populates it from the persister.
func Load(ctx context.Context, persister Persister) (*EntityCache, error) {
	c := New(persister)
	if persister == nil {
		return c, nil
	}

	summoners, err := persister.LoadSummoners(ctx)
	if err != nil {
		return nil, fmt.Errorf("load summoners: %w", err)
	}
	version, err := persister.LoadStaticVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("load static version: %w", err)
	}
	catalog, err := persister.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load champion catalog: %w", err)
	}

	for _, s := range summoners {
		if s.ID == "" {
			continue
		}
		c.upsertLocked(s)
	}
	c.version = version
	if catalog.Data == nil {
		catalog.Data = map[string]core.ChampionEntry{}
	}
	c.catalog = catalog
	return c, nil
}

// LookupSummonerByName finds a summoner by normalized name.
func (c *EntityCache) LookupSummonerByName(name string) (core.Summoner, bool) {
	want := core.NormalizeName(name)
	if want == "" {
		return core.Summoner{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.summoners {
		if core.NormalizeName(s.Name) == want {
			return s, true
		}
	}
	return core.Summoner{}, false
}

// LookupSummonerByID finds a summoner by exact id.
func (c *EntityCache) LookupSummonerByID(id string) (core.Summoner, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.byID[id]
	if !ok {
		return core.Summoner{}, false
	}
	return c.summoners[idx], true
}

// UpsertSummoner inserts a new record or refreshes the mutable fields of an
// existing one. ID and Name of an existing record are never changed.
func (c *EntityCache) UpsertSummoner(s core.Summoner) (UpsertResult, error) {
	if s.ID == "" {
		return Inserted, errors.New("summoner id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertLocked(s), nil
}

func (c *EntityCache) upsertLocked(s core.Summoner) UpsertResult {
	if idx, ok := c.byID[s.ID]; ok {
		existing := &c.summoners[idx]
		existing.ProfileIconID = s.ProfileIconID
		existing.RevisionDate = s.RevisionDate
		existing.SummonerLevel = s.SummonerLevel
		return Updated
	}
	c.byID[s.ID] = len(c.summoners)
	c.summoners = append(c.summoners, s)
	return Inserted
}

// Summoners returns a snapshot of all records in insertion order.
func (c *EntityCache) Summoners() []core.Summoner {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]core.Summoner(nil), c.summoners...)
}

// StaticVersion returns the stored static data version.
func (c *EntityCache) StaticVersion() core.StaticVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// SetStaticVersion replaces the stored static data version.
func (c *EntityCache) SetStaticVersion(v core.StaticVersion) {
	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
}

// Catalog returns the stored champion catalog.
func (c *EntityCache) Catalog() core.ChampionCatalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// SetCatalog replaces the stored champion catalog.
func (c *EntityCache) SetCatalog(catalog core.ChampionCatalog) {
	if catalog.Data == nil {
		catalog.Data = map[string]core.ChampionEntry{}
	}
	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()
}

// ReplaceStatic swaps version and catalog together.
func (c *EntityCache) ReplaceStatic(v core.StaticVersion, catalog core.ChampionCatalog) {
	if catalog.Data == nil {
		catalog.Data = map[string]core.ChampionEntry{}
	}
	c.mu.Lock()
	c.version = v
	c.catalog = catalog
	c.mu.Unlock()
}

// LookupChampion matches a catalog key ignoring case and spaces.
func (c *EntityCache) LookupChampion(name string) (string, core.ChampionEntry, bool) {
	want := core.NormalizeName(name)
	if want == "" {
		return "", core.ChampionEntry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.catalog.Data))
	for key := range c.catalog.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if core.NormalizeName(key) == want {
			return key, c.catalog.Data[key], true
		}
	}
	return "", core.ChampionEntry{}, false
}

// FlushSummoners writes all summoner records to the persister. Concurrent
// flushes are serialized, so the last save always carries the newest state.
func (c *EntityCache) FlushSummoners(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.persister.SaveSummoners(ctx, c.Summoners())
}

// FlushStatic writes the static version and catalog to the persister.
func (c *EntityCache) FlushStatic(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}

	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.RLock()
	version, catalog := c.version, c.catalog
	c.mu.RUnlock()

	if err := c.persister.SaveCatalog(ctx, catalog); err != nil {
		return fmt.Errorf("save champion catalog: %w", err)
	}
	if err := c.persister.SaveStaticVersion(ctx, version); err != nil {
		return fmt.Errorf("save static version: %w", err)
	}
	return nil
}

// Close releases the persister.
func (c *EntityCache) Close() error {
	if c == nil || c.persister == nil {
		return nil
	}
	return c.persister.Close()
}
