package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riftproxy/riftproxy/internal/core"
	"github.com/riftproxy/riftproxy/internal/core/engine"
	apperrors "github.com/riftproxy/riftproxy/internal/errors"
	"github.com/riftproxy/riftproxy/internal/server/handlers"
	servermw "github.com/riftproxy/riftproxy/internal/server/middleware"
)

type fakeProxy struct {
	calls int
}

func (f *fakeProxy) ResolveSummonerByName(ctx context.Context, name string, apiKey string) (core.Summoner, error) {
	f.calls++
	return core.Summoner{ID: "id-" + name, Name: name}, nil
}

func (f *fakeProxy) ResolveSummonerByID(ctx context.Context, id string, apiKey string) (core.Summoner, error) {
	f.calls++
	return core.Summoner{ID: id, Name: "Faker"}, nil
}

func (f *fakeProxy) RefreshSummonerByName(ctx context.Context, name string, apiKey string) (core.Summoner, error) {
	f.calls++
	return core.Summoner{ID: "id-" + name, Name: name}, nil
}

func (f *fakeProxy) MasteriesBySummonerID(ctx context.Context, id string, apiKey string) (engine.MasteryReport, error) {
	return engine.MasteryReport{SummonerID: id}, nil
}

func (f *fakeProxy) ChampionInfo(name string) (string, core.ChampionEntry, error) {
	return "", core.ChampionEntry{}, &core.UpstreamError{Kind: core.KindNotFound, Endpoint: "champion"}
}

func (f *fakeProxy) RandomChampion() (string, core.ChampionEntry, error) {
	return "Aatrox", core.ChampionEntry{Name: "Aatrox", ExternalID: 266}, nil
}

func (f *fakeProxy) RefreshStaticData(ctx context.Context, apiKey string) (engine.StaticRefresh, error) {
	return engine.StaticRefresh{}, nil
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "NOT_FOUND", body.Error.Code)
	require.NotEmpty(t, body.Error.RequestID)
}

func TestServerRoutesAPI(t *testing.T) {
	proxy := &fakeProxy{}
	srv := New(Options{
		Host: "127.0.0.1",
		API:  &handlers.API{Proxy: proxy, Gate: engine.NewRateGate("na1.api.riotgames.com")},
	})
	h := srv.Handler()

	for _, tc := range []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/api/summoners/by-name/Faker", http.StatusOK},
		{http.MethodGet, "/api/summoners/by-name/Faker/id", http.StatusOK},
		{http.MethodPost, "/api/summoners/by-name/Faker/refresh", http.StatusOK},
		{http.MethodGet, "/api/summoners/abc", http.StatusOK},
		{http.MethodGet, "/api/summoners/abc/name", http.StatusOK},
		{http.MethodGet, "/api/summoners/abc/masteries", http.StatusOK},
		{http.MethodGet, "/api/champions/random", http.StatusOK},
		{http.MethodGet, "/api/champions/nobody", http.StatusNotFound},
		{http.MethodPost, "/api/static/refresh", http.StatusOK},
		{http.MethodGet, "/api/ratelimit", http.StatusOK},
		{http.MethodDelete, "/api/ratelimit", http.StatusMethodNotAllowed},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/health/live", http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.status, rec.Code, "%s %s", tc.method, tc.path)
		require.NotEmpty(t, rec.Header().Get(servermw.RequestIDHeader))
	}
	require.Equal(t, 5, proxy.calls)
}

func TestServerThrottlesAPIOnly(t *testing.T) {
	srv := New(Options{
		Host:           "127.0.0.1",
		API:            &handlers.API{Proxy: &fakeProxy{}},
		ClientLimiters: servermw.NewClientLimiters(0.001, 1),
	})
	h := srv.Handler()

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.10:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("/api/champions/random"))
	require.Equal(t, http.StatusTooManyRequests, do("/api/champions/random"))
	require.Equal(t, http.StatusOK, do("/health/live"))
}

func TestServerAddr(t *testing.T) {
	require.Equal(t, "0.0.0.0:8080", New(Options{Host: "0.0.0.0", Port: 8080}).Addr())
}
