// Package config provides centralized configuration management for riftproxy.
// Settings are resolved through viper and decoded into Config with
// mapstructure, so durations and lists may be given as strings in any layer.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/riftproxy/riftproxy/internal/appid"
)

// Store drivers.
const (
	DriverJSON   = "json"
	DriverLibsql = "libsql"
	DriverRedis  = "redis"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Defaults returns the default settings as a nested map.
func Defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "localhost",
			"port":             8080,
			"read_timeout":     "30s",
			"write_timeout":    "30s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
			"client_rate":      5.0,
			"client_burst":     10,
			"refresh_on_start": true,
		},
		"store": map[string]any{
			"driver":     DriverJSON,
			"dir":        DefaultDataDir(),
			"path":       DefaultStorePath(),
			"url":        "",
			"auth_token": "",
			"redis": map[string]any{
				"addr":     "localhost:6379",
				"password": "",
				"db":       0,
				"prefix":   appid.BinaryName + ":",
			},
		},
		"upstream": map[string]any{
			"platform_url": "https://na1.api.riotgames.com",
			"static_url":   "https://ddragon.leagueoflegends.com",
			"api_key":      "",
			"locale":       "en_US",
			"timeout":      "10s",
		},
		"logging": map[string]any{
			"level":   "info",
			"profile": "structured",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
		"debug": map[string]any{
			"enabled":       false,
			"pprof_enabled": false,
		},
	}
}

// SetDefaults registers Defaults on v using dotted keys.
func SetDefaults(v *viper.Viper) {
	for key, value := range flatten("", Defaults()) {
		v.SetDefault(key, value)
	}
}

// BindEnv makes v read PREFIX_SECTION_KEY environment variables,
// e.g. RIFTPROXY_UPSTREAM_API_KEY for upstream.api_key.
func BindEnv(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped and existing variables are never overridden.
// It returns the files that were loaded.
func LoadDotEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	loaded := make([]string, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Load decodes the configuration held by the global viper instance.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context) (*Config, error) {
	return FromViper(viper.GetViper())
}

// FromViper decodes and validates the settings of v and stores the result
// as the current configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg, err := Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Decode converts a settings map into Config.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverJSON
	}
	if strings.TrimSpace(cfg.Store.Dir) == "" {
		cfg.Store.Dir = DefaultDataDir()
	}
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var problems []string

	switch cfg.Store.Driver {
	case DriverJSON:
		if strings.TrimSpace(cfg.Store.Dir) == "" {
			problems = append(problems, "store.dir is required for the json driver")
		}
	case DriverLibsql:
		if strings.TrimSpace(cfg.Store.Path) == "" && strings.TrimSpace(cfg.Store.URL) == "" {
			problems = append(problems, "store.path or store.url is required for the libsql driver")
		}
	case DriverRedis:
		if strings.TrimSpace(cfg.Store.Redis.Addr) == "" {
			problems = append(problems, "store.redis.addr is required for the redis driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported store driver %q", cfg.Store.Driver))
	}

	for key, raw := range map[string]string{
		"upstream.platform_url": cfg.Upstream.PlatformURL,
		"upstream.static_url":   cfg.Upstream.StaticURL,
	} {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			problems = append(problems, fmt.Sprintf("%s must be an absolute URL", key))
		}
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 0 and 65535")
	}
	if cfg.Server.ClientRate < 0 {
		problems = append(problems, "server.client_rate must not be negative")
	}
	if cfg.Server.ClientRate > 0 && cfg.Server.ClientBurst < 1 {
		problems = append(problems, "server.client_burst must be at least 1 when client_rate is set")
	}
	if cfg.Upstream.Timeout < 0 {
		problems = append(problems, "upstream.timeout must not be negative")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// StarterYAML renders the default settings as a config file.
func StarterYAML() ([]byte, error) {
	out, err := yaml.Marshal(Defaults())
	if err != nil {
		return nil, fmt.Errorf("render starter config: %w", err)
	}
	header := []byte("# " + appid.BinaryName + " configuration\n# Environment variables use the " + appid.EnvPrefix + " prefix, e.g. " + appid.EnvPrefix + "UPSTREAM_API_KEY.\n")
	return append(header, out...), nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	dataDir := gfconfig.GetAppDataDir(appid.ConfigName)
	if strings.TrimSpace(dataDir) == "" {
		return "./data"
	}
	return dataDir
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(appid.ConfigName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appid.BinaryName + ".db"
	}
	return filepath.Join(dataDir, appid.BinaryName+".db")
}

func flatten(prefix string, in map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}
