package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riftproxy/riftproxy/internal/core"
)

type recordingObserver struct {
	mu    sync.Mutex
	hosts []string
}

func (o *recordingObserver) Observe(host string, header http.Header) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hosts = append(o.hosts, host)
	return true
}

func TestClientCallSuccess(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotKey = r.URL.Query().Get("api_key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","name":"Fa Ker","profileIconId":7,"revisionDate":10,"summonerLevel":30}`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	client := &Client{HTTP: server.Client(), PlatformURL: server.URL, Observer: observer}

	body, err := client.Call(context.Background(), SummonerByName, map[string]string{ParamSummonerName: "Fa Ker"}, "secret")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"abc","name":"Fa Ker","profileIconId":7,"revisionDate":10,"summonerLevel":30}`, string(body))
	require.Equal(t, "/lol/summoner/v4/summoners/by-name/Fa%20Ker", gotPath)
	require.Equal(t, "secret", gotKey)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	require.Equal(t, []string{serverURL.Host}, observer.hosts)
}

func TestClientStaticEndpointHasNoKey(t *testing.T) {
	var gotPath string
	var hadKey bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, hadKey = r.URL.Query()["api_key"]
		_, _ = w.Write([]byte(`{"version":"13.1.1","data":{}}`))
	}))
	defer server.Close()

	client := &Client{HTTP: server.Client(), StaticURL: server.URL}

	_, err := client.Call(context.Background(), StaticChampions, map[string]string{ParamVersion: "13.1.1"}, "secret")
	require.NoError(t, err)
	require.Equal(t, "/cdn/13.1.1/data/en_US/champion.json", gotPath)
	require.False(t, hadKey)
}

func TestClientStatusClassification(t *testing.T) {
	cases := map[int]core.ErrorKind{
		http.StatusBadRequest:           core.KindBadRequest,
		http.StatusUnauthorized:         core.KindUnauthorized,
		http.StatusForbidden:            core.KindForbidden,
		http.StatusNotFound:             core.KindNotFound,
		http.StatusMethodNotAllowed:     core.KindMethodNotAllowed,
		http.StatusUnsupportedMediaType: core.KindUnsupportedMediaType,
		http.StatusUnprocessableEntity:  core.KindUnprocessable,
		http.StatusTooManyRequests:      core.KindRateLimited,
		http.StatusInternalServerError:  core.KindServerError,
		http.StatusBadGateway:           core.KindBadGateway,
		http.StatusServiceUnavailable:   core.KindServiceUnavailable,
		http.StatusGatewayTimeout:       core.KindGatewayTimeout,
		http.StatusTeapot:               core.KindUnexpectedStatus,
	}

	for status, kind := range cases {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			observer := &recordingObserver{}
			client := &Client{HTTP: server.Client(), PlatformURL: server.URL, Observer: observer}

			_, err := client.Call(context.Background(), SummonerByID, map[string]string{ParamSummonerID: "abc"}, "k")
			require.Error(t, err)
			require.Equal(t, kind, core.KindOf(err))
			require.Len(t, observer.hosts, 1)

			var upstreamErr *core.UpstreamError
			require.ErrorAs(t, err, &upstreamErr)
			require.Equal(t, status, upstreamErr.StatusCode)
			require.False(t, upstreamErr.Local)
		})
	}
}

func TestClientMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	client := &Client{HTTP: server.Client(), StaticURL: server.URL}
	_, err := client.Call(context.Background(), StaticVersions, nil, "")
	require.True(t, core.IsKind(err, core.KindMalformedResponse))
}

func TestClientNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := &Client{PlatformURL: serverURL}
	_, err := client.Call(context.Background(), SummonerByID, map[string]string{ParamSummonerID: "abc"}, "k")
	require.True(t, core.IsKind(err, core.KindNetworkFailure))
}

func TestClientMissingParamFailsBeforeIO(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := &Client{HTTP: server.Client(), PlatformURL: server.URL}
	_, err := client.Call(context.Background(), SummonerByName, map[string]string{}, "k")
	require.True(t, core.IsKind(err, core.KindBadRequest))
	require.Zero(t, calls)
}

func TestEndpointExpand(t *testing.T) {
	path, err := MasteriesBySummoner.Expand(map[string]string{ParamSummonerID: "a/b"})
	require.NoError(t, err)
	require.Equal(t, "/lol/champion-mastery/v4/champion-masteries/by-summoner/a%2Fb", path)

	_, err = StaticChampions.Expand(map[string]string{ParamVersion: "1"})
	require.ErrorContains(t, err, "locale")
}

func TestClientPlatformHost(t *testing.T) {
	require.Equal(t, "na1.api.riotgames.com", (&Client{}).PlatformHost())
	require.Equal(t, "127.0.0.1:9000", (&Client{PlatformURL: "http://127.0.0.1:9000"}).PlatformHost())
}
