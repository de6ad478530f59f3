package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riftproxy/riftproxy/internal/core"
	"github.com/riftproxy/riftproxy/internal/core/cache"
	"github.com/riftproxy/riftproxy/internal/core/upstream"
)

type stubResponse struct {
	body string
	err  error
}

type stubUpstream struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	calls     map[string]int
	params    []map[string]string
	delay     time.Duration
}

func newStubUpstream() *stubUpstream {
	return &stubUpstream{responses: map[string]stubResponse{}, calls: map[string]int{}}
}

func (s *stubUpstream) Call(ctx context.Context, endpoint upstream.Endpoint, params map[string]string, apiKey string) (json.RawMessage, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[endpoint.Name]++
	s.params = append(s.params, params)
	resp, ok := s.responses[endpoint.Name]
	if !ok {
		return nil, &core.UpstreamError{Kind: core.KindNotFound, StatusCode: 404, Endpoint: endpoint.Name}
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return json.RawMessage(resp.body), nil
}

func (s *stubUpstream) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubUpstream) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

type failingPersister struct{}

func (failingPersister) LoadSummoners(context.Context) ([]core.Summoner, error) { return nil, nil }
func (failingPersister) SaveSummoners(context.Context, []core.Summoner) error {
	return errors.New("disk full")
}
func (failingPersister) LoadStaticVersion(context.Context) (core.StaticVersion, error) {
	return core.StaticVersion{}, nil
}
func (failingPersister) SaveStaticVersion(context.Context, core.StaticVersion) error {
	return errors.New("disk full")
}
func (failingPersister) LoadCatalog(context.Context) (core.ChampionCatalog, error) {
	return core.ChampionCatalog{}, nil
}
func (failingPersister) SaveCatalog(context.Context, core.ChampionCatalog) error {
	return errors.New("disk full")
}
func (failingPersister) Close() error { return nil }

func newCoordinator(up *stubUpstream) *Coordinator {
	return &Coordinator{
		Cache:    cache.New(nil),
		Gate:     NewRateGate("na1.api.riotgames.com"),
		Upstream: up,
	}
}

const fakerJSON = `{"id":"abc","name":"Fa Ker","profileIconId":7,"revisionDate":10,"summonerLevel":30}`

func TestResolveSummonerByNameCacheHitSkipsUpstream(t *testing.T) {
	up := newStubUpstream()
	c := newCoordinator(up)
	_, err := c.Cache.UpsertSummoner(core.Summoner{ID: "abc", Name: "Fa Ker"})
	require.NoError(t, err)

	// exhausted gate must not matter for local hits
	c.Gate.Observe("na1.api.riotgames.com", rateHeaders("1:1", "1:1", "1:1", "1:1"))

	got, err := c.ResolveSummonerByName(context.Background(), "FAKER", "key")
	require.NoError(t, err)
	require.Equal(t, "abc", got.ID)
	require.Zero(t, up.total())
}

func TestResolveSummonerByNameMissFetchesAndUpserts(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.SummonerByName.Name] = stubResponse{body: fakerJSON}
	c := newCoordinator(up)

	got, err := c.ResolveSummonerByName(context.Background(), "Fa Ker", "key")
	require.NoError(t, err)
	require.Equal(t, core.Summoner{ID: "abc", Name: "Fa Ker", ProfileIconID: 7, RevisionDate: 10, SummonerLevel: 30}, got)
	require.Equal(t, 1, up.count(upstream.SummonerByName.Name))
	require.Equal(t, "Fa Ker", up.params[0][upstream.ParamSummonerName])

	_, err = c.ResolveSummonerByName(context.Background(), "faker", "key")
	require.NoError(t, err)
	require.Equal(t, 1, up.count(upstream.SummonerByName.Name))

	byID, err := c.ResolveSummonerByID(context.Background(), "abc", "key")
	require.NoError(t, err)
	require.Equal(t, got, byID)
	require.Equal(t, 1, up.total())
}

func TestResolveBlockedByGateMakesNoCall(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.SummonerByID.Name] = stubResponse{body: fakerJSON}
	c := newCoordinator(up)
	c.Gate.Observe("na1.api.riotgames.com", rateHeaders("20:1,100:120", "20:1,5:120", "", ""))

	_, err := c.ResolveSummonerByID(context.Background(), "abc", "key")
	require.Error(t, err)
	require.True(t, core.IsKind(err, core.KindRateLimited))

	var upstreamErr *core.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.True(t, upstreamErr.Local)
	require.Zero(t, up.total())

	_, ok := c.Cache.LookupSummonerByID("abc")
	require.False(t, ok)
}

func TestResolvePropagatesUpstreamErrors(t *testing.T) {
	up := newStubUpstream()
	c := newCoordinator(up)

	_, err := c.ResolveSummonerByName(context.Background(), "nobody", "key")
	require.True(t, core.IsKind(err, core.KindNotFound))
	require.Empty(t, c.Cache.Summoners())

	_, err = c.ResolveSummonerByName(context.Background(), "  ", "key")
	require.True(t, core.IsKind(err, core.KindBadRequest))
	require.Equal(t, 1, up.total())
}

func TestResolveMalformedSummoner(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.SummonerByID.Name] = stubResponse{body: `{"name":"no id"}`}
	c := newCoordinator(up)

	_, err := c.ResolveSummonerByID(context.Background(), "x", "key")
	require.True(t, core.IsKind(err, core.KindMalformedResponse))
}

func TestResolveSingleFlight(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.SummonerByName.Name] = stubResponse{body: fakerJSON}
	up.delay = 50 * time.Millisecond
	c := newCoordinator(up)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for _, name := range []string{"Fa Ker", "faker", "FA KER", "fa ker", "Faker"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			s, err := c.ResolveSummonerByName(context.Background(), name, "key")
			if err != nil || s.ID != "abc" {
				failures.Add(1)
			}
		}(name)
	}
	wg.Wait()

	require.Zero(t, failures.Load())
	require.Equal(t, 1, up.count(upstream.SummonerByName.Name))
	require.Len(t, c.Cache.Summoners(), 1)
}

func TestFlushFailureStillReturnsEntity(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.SummonerByID.Name] = stubResponse{body: fakerJSON}
	c := newCoordinator(up)
	c.Cache = cache.New(failingPersister{})

	got, err := c.ResolveSummonerByID(context.Background(), "abc", "key")
	require.NoError(t, err)
	require.Equal(t, "abc", got.ID)

	_, ok := c.Cache.LookupSummonerByID("abc")
	require.True(t, ok)
}

func TestRefreshSummonerByNameBypassesCache(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.SummonerByName.Name] = stubResponse{
		body: `{"id":"abc","name":"Renamed","profileIconId":9,"revisionDate":20,"summonerLevel":31}`,
	}
	c := newCoordinator(up)
	_, err := c.Cache.UpsertSummoner(core.Summoner{ID: "abc", Name: "Fa Ker", ProfileIconID: 7, RevisionDate: 10, SummonerLevel: 30})
	require.NoError(t, err)

	got, err := c.RefreshSummonerByName(context.Background(), "Fa Ker", "key")
	require.NoError(t, err)
	require.Equal(t, 1, up.total())
	require.Equal(t, core.Summoner{ID: "abc", Name: "Fa Ker", ProfileIconID: 9, RevisionDate: 20, SummonerLevel: 31}, got)
	require.Len(t, c.Cache.Summoners(), 1)
}

func TestMasteriesBySummonerID(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.MasteriesBySummoner.Name] = stubResponse{
		body: `[{"championId":103,"championLevel":7,"championPoints":1000,"lastPlayTime":5},{"championId":999,"championLevel":1,"championPoints":10,"lastPlayTime":6}]`,
	}
	c := newCoordinator(up)
	_, err := c.Cache.UpsertSummoner(core.Summoner{ID: "abc", Name: "Fa Ker"})
	require.NoError(t, err)
	c.Cache.SetCatalog(core.ChampionCatalog{Version: "1", Data: map[string]core.ChampionEntry{
		"Ahri": {Name: "Ahri", ExternalID: 103},
	}})

	report, err := c.MasteriesBySummonerID(context.Background(), "abc", "key")
	require.NoError(t, err)
	require.Equal(t, "Fa Ker", report.SummonerName)
	require.Len(t, report.Masteries, 2)
	require.Equal(t, "Ahri", report.Masteries[0].ChampionName)
	require.Equal(t, UnknownChampionName, report.Masteries[1].ChampionName)

	c.Gate.Observe("na1.api.riotgames.com", rateHeaders("1:1", "1:1", "", ""))
	_, err = c.MasteriesBySummonerID(context.Background(), "abc", "key")
	require.True(t, core.IsKind(err, core.KindRateLimited))
	require.Equal(t, 1, up.total())
}

func TestChampionInfoAndRandom(t *testing.T) {
	c := newCoordinator(newStubUpstream())

	_, _, err := c.RandomChampion()
	require.True(t, core.IsKind(err, core.KindNotFound))

	c.Cache.SetCatalog(core.ChampionCatalog{Version: "1", Data: map[string]core.ChampionEntry{
		"Ahri":        {Name: "Ahri", ExternalID: 103},
		"MissFortune": {Name: "Miss Fortune", ExternalID: 21},
		"Zed":         {Name: "Zed", ExternalID: 238},
	}})

	key, entry, err := c.ChampionInfo("miss fortune")
	require.NoError(t, err)
	require.Equal(t, "MissFortune", key)
	require.Equal(t, 21, entry.ExternalID)

	_, _, err = c.ChampionInfo("teemo")
	require.True(t, core.IsKind(err, core.KindNotFound))

	c.Intn = func(n int) int {
		require.Equal(t, 3, n)
		return 2
	}
	key, _, err = c.RandomChampion()
	require.NoError(t, err)
	require.Equal(t, "Zed", key)
}

const championsJSON = `{"type":"champion","version":"10.2","data":{"Ahri":{"name":"Ahri","key":"103","title":"the Nine-Tailed Fox"}}}`

func TestRefreshStaticDataSameVersionSkipsCatalog(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.StaticVersions.Name] = stubResponse{body: `["10.1","10.0"]`}
	up.responses[upstream.StaticChampions.Name] = stubResponse{body: championsJSON}
	c := newCoordinator(up)
	stored := core.ChampionCatalog{Version: "10.1", Data: map[string]core.ChampionEntry{"Zed": {Name: "Zed", ExternalID: 238}}}
	c.Cache.ReplaceStatic(core.StaticVersion{Value: "10.1"}, stored)

	refresh, err := c.RefreshStaticData(context.Background(), "")
	require.NoError(t, err)
	require.False(t, refresh.Updated)
	require.False(t, refresh.Fallback)
	require.Equal(t, stored, refresh.Catalog)
	require.Zero(t, up.count(upstream.StaticChampions.Name))
}

func TestRefreshStaticDataNewVersionReplacesBoth(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.StaticVersions.Name] = stubResponse{body: `["10.2","10.1"]`}
	up.responses[upstream.StaticChampions.Name] = stubResponse{body: championsJSON}
	c := newCoordinator(up)
	c.Cache.ReplaceStatic(core.StaticVersion{Value: "10.1"}, core.ChampionCatalog{Version: "10.1", Data: map[string]core.ChampionEntry{"Zed": {Name: "Zed"}}})

	// the static mirror is exempt from the gate
	c.Gate.Observe("na1.api.riotgames.com", rateHeaders("1:1", "1:1", "", ""))

	refresh, err := c.RefreshStaticData(context.Background(), "")
	require.NoError(t, err)
	require.True(t, refresh.Updated)
	require.Equal(t, "10.2", refresh.Version.Value)
	require.Equal(t, "10.2", c.Cache.StaticVersion().Value)

	catalog := c.Cache.Catalog()
	require.Equal(t, []string{"Ahri"}, catalog.Keys())
	require.Equal(t, 103, catalog.Data["Ahri"].ExternalID)
	require.JSONEq(t, `{"name":"Ahri","key":"103","title":"the Nine-Tailed Fox"}`, string(catalog.Data["Ahri"].Attributes))
	require.Equal(t, "10.2", up.params[1][upstream.ParamVersion])
}

func TestRefreshStaticDataEmptyCatalogRefetches(t *testing.T) {
	up := newStubUpstream()
	up.responses[upstream.StaticVersions.Name] = stubResponse{body: `["10.2"]`}
	up.responses[upstream.StaticChampions.Name] = stubResponse{body: championsJSON}
	c := newCoordinator(up)
	c.Cache.SetStaticVersion(core.StaticVersion{Value: "10.2"})

	refresh, err := c.RefreshStaticData(context.Background(), "")
	require.NoError(t, err)
	require.True(t, refresh.Updated)
	require.Equal(t, 1, up.count(upstream.StaticChampions.Name))
}

func TestRefreshStaticDataFallback(t *testing.T) {
	t.Run("VersionCheckFails", func(t *testing.T) {
		up := newStubUpstream()
		up.responses[upstream.StaticVersions.Name] = stubResponse{err: &core.UpstreamError{Kind: core.KindNetworkFailure}}
		c := newCoordinator(up)

		refresh, err := c.RefreshStaticData(context.Background(), "")
		require.Error(t, err)
		require.True(t, refresh.Fallback)
		require.Zero(t, refresh.Catalog.Len())
		require.Zero(t, up.count(upstream.StaticChampions.Name))
	})

	t.Run("CatalogFetchFails", func(t *testing.T) {
		up := newStubUpstream()
		up.responses[upstream.StaticVersions.Name] = stubResponse{body: `["10.2"]`}
		up.responses[upstream.StaticChampions.Name] = stubResponse{err: &core.UpstreamError{Kind: core.KindServiceUnavailable}}
		c := newCoordinator(up)
		stored := core.ChampionCatalog{Version: "10.1", Data: map[string]core.ChampionEntry{"Zed": {Name: "Zed"}}}
		c.Cache.ReplaceStatic(core.StaticVersion{Value: "10.1"}, stored)

		refresh, err := c.RefreshStaticData(context.Background(), "")
		require.True(t, core.IsKind(err, core.KindServiceUnavailable))
		require.True(t, refresh.Fallback)
		require.Equal(t, stored, refresh.Catalog)
		require.Equal(t, "10.1", c.Cache.StaticVersion().Value)
	})

	t.Run("EmptyVersionList", func(t *testing.T) {
		up := newStubUpstream()
		up.responses[upstream.StaticVersions.Name] = stubResponse{body: `[]`}
		c := newCoordinator(up)

		refresh, err := c.RefreshStaticData(context.Background(), "")
		require.True(t, core.IsKind(err, core.KindMalformedResponse))
		require.True(t, refresh.Fallback)
	})
}

func TestCoordinatorNotConfigured(t *testing.T) {
	var c *Coordinator
	_, err := c.ResolveSummonerByID(context.Background(), "x", "k")
	require.Error(t, err)
}

// heldUpstream blocks every call until release is closed and fails with the
// call context's error if that context ended meanwhile.
type heldUpstream struct {
	body    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (h *heldUpstream) Call(ctx context.Context, endpoint upstream.Endpoint, _ map[string]string, _ string) (json.RawMessage, error) {
	h.calls.Add(1)
	h.once.Do(func() { close(h.entered) })
	<-h.release
	if err := ctx.Err(); err != nil {
		return nil, &core.UpstreamError{Kind: core.KindNetworkFailure, Endpoint: endpoint.Name, Err: err}
	}
	return json.RawMessage(h.body), nil
}

func TestResolveSharedFetchOutlivesCancelledCaller(t *testing.T) {
	up := &heldUpstream{body: fakerJSON, entered: make(chan struct{}), release: make(chan struct{})}
	c := &Coordinator{Cache: cache.New(nil), Gate: NewRateGate("na1.api.riotgames.com"), Upstream: up}

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ResolveSummonerByName(firstCtx, "Fa Ker", "key")
		firstErr <- err
	}()
	<-up.entered

	type result struct {
		summoner core.Summoner
		err      error
	}
	second := make(chan result, 1)
	go func() {
		s, err := c.ResolveSummonerByName(context.Background(), "faker", "key")
		second <- result{s, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		require.True(t, core.IsKind(err, core.KindNetworkFailure))
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	close(up.release)
	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, "abc", got.summoner.ID)
	require.EqualValues(t, 1, up.calls.Load())

	_, ok := c.Cache.LookupSummonerByID("abc")
	require.True(t, ok, "shared fetch still upserts after its first caller left")
}
