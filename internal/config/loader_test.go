package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v, "RIFTPROXY_")
	return v
}

func TestFromViperDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := FromViper(newTestViper(t))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify server defaults
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5.0, cfg.Server.ClientRate)
	assert.Equal(t, 10, cfg.Server.ClientBurst)
	assert.True(t, cfg.Server.RefreshOnStart)

	// Verify store defaults
	assert.Equal(t, DriverJSON, cfg.Store.Driver)
	assert.NotEmpty(t, cfg.Store.Dir)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)

	// Verify upstream defaults
	assert.Equal(t, "https://na1.api.riotgames.com", cfg.Upstream.PlatformURL)
	assert.Equal(t, "https://ddragon.leagueoflegends.com", cfg.Upstream.StaticURL)
	assert.Equal(t, "en_US", cfg.Upstream.Locale)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Empty(t, cfg.Upstream.APIKey)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)

	require.Same(t, cfg, GetConfig())
}

func TestFromViperEnvironmentOverrides(t *testing.T) {
	t.Setenv("RIFTPROXY_UPSTREAM_API_KEY", "RGAPI-test")
	t.Setenv("RIFTPROXY_SERVER_PORT", "9999")
	t.Setenv("RIFTPROXY_UPSTREAM_TIMEOUT", "3s")
	t.Setenv("RIFTPROXY_STORE_DRIVER", "REDIS")

	cfg, err := FromViper(newTestViper(t))
	require.NoError(t, err)
	assert.Equal(t, "RGAPI-test", cfg.Upstream.APIKey)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
}

func TestFromViperConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: 3000
store:
  driver: libsql
  path: ":memory:"
upstream:
  api_key: from-file
  locale: ko_KR
`), 0o600))

	v := newTestViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, DriverLibsql, cfg.Store.Driver)
	assert.Equal(t, ":memory:", cfg.Store.Path)
	assert.Equal(t, "from-file", cfg.Upstream.APIKey)
	assert.Equal(t, "ko_KR", cfg.Upstream.Locale)

	// environment beats the file
	t.Setenv("RIFTPROXY_UPSTREAM_API_KEY", "from-env")
	cfg, err = FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Upstream.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RIFTPROXY_TEST_DOTENV=from-dotenv\nRIFTPROXY_TEST_EXISTING=from-dotenv\n"), 0o600))

	t.Setenv("RIFTPROXY_TEST_EXISTING", "from-env")
	t.Setenv("RIFTPROXY_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("RIFTPROXY_TEST_DOTENV"))

	loaded, err := LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, loaded)
	assert.Equal(t, "from-dotenv", os.Getenv("RIFTPROXY_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("RIFTPROXY_TEST_EXISTING"))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Decode(Defaults())
		require.NoError(t, err)
		return cfg
	}

	require.NoError(t, Validate(base()))

	t.Run("UnknownDriver", func(t *testing.T) {
		cfg := base()
		cfg.Store.Driver = "mongo"
		require.ErrorContains(t, Validate(cfg), "unsupported store driver")
	})

	t.Run("RedisWithoutAddr", func(t *testing.T) {
		cfg := base()
		cfg.Store.Driver = DriverRedis
		cfg.Store.Redis.Addr = ""
		require.ErrorContains(t, Validate(cfg), "store.redis.addr")
	})

	t.Run("RelativeUpstream", func(t *testing.T) {
		cfg := base()
		cfg.Upstream.PlatformURL = "na1.api.riotgames.com"
		require.ErrorContains(t, Validate(cfg), "upstream.platform_url")
	})

	t.Run("BurstRequired", func(t *testing.T) {
		cfg := base()
		cfg.Server.ClientBurst = 0
		require.ErrorContains(t, Validate(cfg), "client_burst")

		cfg.Server.ClientRate = 0
		require.NoError(t, Validate(cfg))
	})

	require.Error(t, Validate(nil))
}

func TestStarterYAML(t *testing.T) {
	out, err := StarterYAML()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(out, &parsed))
	require.Contains(t, parsed, "upstream")
	require.Contains(t, parsed, "store")

	cfg, err := Decode(parsed)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
}

