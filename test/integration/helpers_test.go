package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riftproxy/riftproxy/internal/config"
	"github.com/riftproxy/riftproxy/internal/core/cache"
	"github.com/riftproxy/riftproxy/internal/core/engine"
	"github.com/riftproxy/riftproxy/internal/core/store"
	"github.com/riftproxy/riftproxy/internal/core/upstream"
	"github.com/riftproxy/riftproxy/internal/observability"
	"github.com/riftproxy/riftproxy/internal/server"
	"github.com/riftproxy/riftproxy/internal/server/handlers"
	"github.com/riftproxy/riftproxy/internal/server/middleware"
)

const testAPIKey = "RGAPI-integration"

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// newLoopbackServer binds to IPv4 loopback explicitly and skips when the
// sandbox refuses to open sockets.
func newLoopbackServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping: loopback listen not permitted: %v", err)
		}
		require.NoError(t, err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// fakePlatform emulates the platform API and static mirror on one host.
type fakePlatform struct {
	mu         sync.Mutex
	calls      map[string]int
	appCount   string
	version    string
	staticDown bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{calls: map[string]int{}, appCount: "1:1,1:120", version: "14.1.1"}
}

func (f *fakePlatform) setAppCount(count string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appCount = count
}

func (f *fakePlatform) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	appCount, version, staticDown := f.appCount, f.version, f.staticDown
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if strings.HasPrefix(r.URL.Path, "/lol/") {
		if r.URL.Query().Get("api_key") != testAPIKey {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"status":{"status_code":403}}`))
			return
		}
		w.Header().Set(engine.HeaderAppRateLimit, "20:1,100:120")
		w.Header().Set(engine.HeaderAppRateLimitCount, appCount)
	}

	switch {
	case r.URL.Path == "/lol/summoner/v4/summoners/by-name/Faker":
		_, _ = w.Write([]byte(`{"id":"sid-1","name":"Faker","profileIconId":7,"revisionDate":1700000000000,"summonerLevel":500}`))
	case r.URL.Path == "/lol/summoner/v4/summoners/sid-1":
		_, _ = w.Write([]byte(`{"id":"sid-1","name":"Faker","profileIconId":7,"revisionDate":1700000000000,"summonerLevel":500}`))
	case r.URL.Path == "/lol/champion-mastery/v4/champion-masteries/by-summoner/sid-1":
		_, _ = w.Write([]byte(`[{"championId":103,"championLevel":7,"championPoints":250000,"lastPlayTime":1700000000000}]`))
	case r.URL.Path == "/api/versions.json":
		if staticDown {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`["` + version + `","14.0.1"]`))
	case strings.HasSuffix(r.URL.Path, "/data/en_US/champion.json"):
		_, _ = w.Write([]byte(`{"version":"` + version + `","data":{"Ahri":{"name":"Ahri","key":"103"},"MonkeyKing":{"name":"Wukong","key":"62"}}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"status_code":404}}`))
	}
}

// proxyStack is a fully wired proxy backed by a json store in dir.
type proxyStack struct {
	cache       *cache.EntityCache
	gate        *engine.RateGate
	coordinator *engine.Coordinator
	server      *httptest.Server
}

func newProxyStack(t *testing.T, platformURL, dir string, limiters *middleware.ClientLimiters) *proxyStack {
	t.Helper()
	ctx := context.Background()

	persister, err := store.OpenPersister(ctx, config.StoreConfig{Driver: config.DriverJSON, Dir: dir})
	require.NoError(t, err)
	entities, err := cache.Load(ctx, persister)
	require.NoError(t, err)
	t.Cleanup(func() { _ = entities.Close() })

	client := &upstream.Client{
		PlatformURL: platformURL,
		StaticURL:   platformURL,
		Locale:      "en_US",
		Logger:      observability.ServerLogger,
	}
	gate := engine.NewRateGate(client.PlatformHost())
	client.Observer = gate

	coordinator := &engine.Coordinator{
		Cache:    entities,
		Gate:     gate,
		Upstream: client,
		Logger:   observability.ServerLogger,
	}

	srv := server.New(server.Options{
		Host:           "127.0.0.1",
		ClientLimiters: limiters,
		API:            &handlers.API{Proxy: coordinator, Gate: gate, APIKey: testAPIKey},
		Build:          handlers.BuildInfo{Version: "test"},
	})

	return &proxyStack{
		cache:       entities,
		gate:        gate,
		coordinator: coordinator,
		server:      newLoopbackServer(t, srv.Handler()),
	}
}
