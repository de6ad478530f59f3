package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riftproxy/riftproxy/internal/core"
)

type memoryPersister struct {
	summoners []core.Summoner
	version   core.StaticVersion
	catalog   core.ChampionCatalog
	loadErr   error
	saveErr   error
	closed    bool
}

func (m *memoryPersister) LoadSummoners(context.Context) ([]core.Summoner, error) {
	return append([]core.Summoner(nil), m.summoners...), m.loadErr
}

func (m *memoryPersister) SaveSummoners(_ context.Context, s []core.Summoner) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.summoners = append([]core.Summoner(nil), s...)
	return nil
}

func (m *memoryPersister) LoadStaticVersion(context.Context) (core.StaticVersion, error) {
	return m.version, nil
}

func (m *memoryPersister) SaveStaticVersion(_ context.Context, v core.StaticVersion) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.version = v
	return nil
}

func (m *memoryPersister) LoadCatalog(context.Context) (core.ChampionCatalog, error) {
	return m.catalog, nil
}

func (m *memoryPersister) SaveCatalog(_ context.Context, c core.ChampionCatalog) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.catalog = c
	return nil
}

func (m *memoryPersister) Close() error {
	m.closed = true
	return nil
}

func TestLookupSummonerByNameNormalizes(t *testing.T) {
	c := New(nil)
	_, err := c.UpsertSummoner(core.Summoner{ID: "1", Name: "Fa Ker"})
	require.NoError(t, err)

	for _, query := range []string{"faker", "FA KER", "Fa Ker", " f a k e r "} {
		got, ok := c.LookupSummonerByName(query)
		require.True(t, ok, query)
		require.Equal(t, "1", got.ID)
	}

	_, ok := c.LookupSummonerByName("fakerr")
	require.False(t, ok)
	_, ok = c.LookupSummonerByName("   ")
	require.False(t, ok)
}

func TestUpsertSummonerOverwritesMutableFieldsOnly(t *testing.T) {
	c := New(nil)

	result, err := c.UpsertSummoner(core.Summoner{ID: "1", Name: "Old Name", ProfileIconID: 1, RevisionDate: 100, SummonerLevel: 10})
	require.NoError(t, err)
	require.Equal(t, Inserted, result)

	result, err = c.UpsertSummoner(core.Summoner{ID: "1", Name: "New Name", ProfileIconID: 2, RevisionDate: 200, SummonerLevel: 11})
	require.NoError(t, err)
	require.Equal(t, Updated, result)

	got, ok := c.LookupSummonerByID("1")
	require.True(t, ok)
	require.Equal(t, core.Summoner{ID: "1", Name: "Old Name", ProfileIconID: 2, RevisionDate: 200, SummonerLevel: 11}, got)
	require.Len(t, c.Summoners(), 1)

	_, ok = c.LookupSummonerByName("new name")
	require.False(t, ok)

	_, err = c.UpsertSummoner(core.Summoner{Name: "missing id"})
	require.Error(t, err)
}

func TestUpsertIsIdempotent(t *testing.T) {
	c := New(nil)
	s := core.Summoner{ID: "1", Name: "A", ProfileIconID: 3, RevisionDate: 9, SummonerLevel: 4}

	_, err := c.UpsertSummoner(s)
	require.NoError(t, err)
	first := c.Summoners()

	_, err = c.UpsertSummoner(s)
	require.NoError(t, err)
	require.Equal(t, first, c.Summoners())
}

func TestLoadAndFlush(t *testing.T) {
	catalog := core.ChampionCatalog{
		Version: "13.1.1",
		Data: map[string]core.ChampionEntry{
			"MonkeyKing": {Name: "Wukong", ExternalID: 62, Attributes: json.RawMessage(`{"name":"Wukong","key":"62"}`)},
		},
	}
	p := &memoryPersister{
		summoners: []core.Summoner{{ID: "1", Name: "A"}},
		version:   core.StaticVersion{Value: "13.1.1"},
		catalog:   catalog,
	}

	c, err := Load(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "13.1.1", c.StaticVersion().Value)
	require.Equal(t, 1, c.Catalog().Len())

	_, err = c.UpsertSummoner(core.Summoner{ID: "2", Name: "B"})
	require.NoError(t, err)
	require.NoError(t, c.FlushSummoners(context.Background()))
	require.Len(t, p.summoners, 2)

	c.ReplaceStatic(core.StaticVersion{Value: "13.2.1"}, core.ChampionCatalog{Version: "13.2.1"})
	require.NoError(t, c.FlushStatic(context.Background()))
	require.Equal(t, "13.2.1", p.version.Value)
	require.Equal(t, "13.2.1", p.catalog.Version)
	require.NotNil(t, c.Catalog().Data)

	require.NoError(t, c.Close())
	require.True(t, p.closed)
}

func TestLoadEmptyPersister(t *testing.T) {
	c, err := Load(context.Background(), &memoryPersister{})
	require.NoError(t, err)
	require.Empty(t, c.Summoners())
	require.Equal(t, "", c.StaticVersion().Value)
	require.Zero(t, c.Catalog().Len())
}

func TestLoadPropagatesErrors(t *testing.T) {
	_, err := Load(context.Background(), &memoryPersister{loadErr: errors.New("corrupt")})
	require.ErrorContains(t, err, "corrupt")
}

func TestFlushErrorKeepsMemoryState(t *testing.T) {
	p := &memoryPersister{saveErr: errors.New("disk full")}
	c := New(p)

	_, err := c.UpsertSummoner(core.Summoner{ID: "1", Name: "A"})
	require.NoError(t, err)
	require.Error(t, c.FlushSummoners(context.Background()))

	_, ok := c.LookupSummonerByID("1")
	require.True(t, ok)
}

func TestLookupChampion(t *testing.T) {
	c := New(nil)
	c.SetCatalog(core.ChampionCatalog{Version: "1", Data: map[string]core.ChampionEntry{
		"MissFortune": {Name: "Miss Fortune", ExternalID: 21},
		"Ahri":        {Name: "Ahri", ExternalID: 103},
	}})

	key, entry, ok := c.LookupChampion("miss fortune")
	require.True(t, ok)
	require.Equal(t, "MissFortune", key)
	require.Equal(t, 21, entry.ExternalID)

	_, _, ok = c.LookupChampion("AHRI")
	require.True(t, ok)

	_, _, ok = c.LookupChampion("Teemo")
	require.False(t, ok)
}

// stallingPersister blocks the first SaveSummoners until release is closed.
type stallingPersister struct {
	memoryPersister

	mu      sync.Mutex
	saves   int
	entered chan struct{}
	release chan struct{}
}

func (p *stallingPersister) SaveSummoners(ctx context.Context, s []core.Summoner) error {
	p.mu.Lock()
	p.saves++
	first := p.saves == 1
	p.mu.Unlock()

	if first {
		close(p.entered)
		<-p.release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memoryPersister.SaveSummoners(ctx, s)
}

func TestConcurrentFlushesKeepNewestSnapshot(t *testing.T) {
	p := &stallingPersister{entered: make(chan struct{}), release: make(chan struct{})}
	c := New(p)

	_, err := c.UpsertSummoner(core.Summoner{ID: "1", Name: "one"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- c.FlushSummoners(context.Background())
	}()
	<-p.entered

	_, err = c.UpsertSummoner(core.Summoner{ID: "2", Name: "two"})
	require.NoError(t, err)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- c.FlushSummoners(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.summoners, 2)
	require.Equal(t, c.Summoners(), p.summoners)
}
