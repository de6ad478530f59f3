package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/config"
	"github.com/riftproxy/riftproxy/internal/core/store"
	"github.com/riftproxy/riftproxy/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation, configuration and store and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		logger := observability.CLILogger
		identity := GetAppIdentity()
		appName := identity.BinaryName

		logger.Info("=== " + appName + " doctor ===")
		logger.Info("")
		logger.Info("Running diagnostic checks...")
		logger.Info("")

		allChecks := true
		totalChecks := 7

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.25" {
			logger.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			logger.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.25+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Gofulmen and Crucible
		version := crucible.GetVersion()
		if version.Crucible != "" && version.Gofulmen != "" {
			logger.Info(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible),
				zap.String("gofulmen_version", version.Gofulmen),
				zap.String("crucible_version", version.Crucible))
		} else {
			logger.Error(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ❌ version metadata unavailable", totalChecks))
			allChecks = false
		}

		// Check 3: Configuration
		cfg, cfgErr := loadConfig(ctx)
		if cfgErr != nil {
			logger.Error(fmt.Sprintf("[3/%d] Checking configuration... ❌ %v", totalChecks, cfgErr))
			logger.Info("       Run '" + appName + " config init' to write a starter config.")
			logger.Info("")
			logger.Warn("⚠️  Remaining checks need a valid configuration.")
			return
		}
		source := "defaults and environment"
		if used := viper.ConfigFileUsed(); used != "" {
			source = used
		}
		logger.Info(fmt.Sprintf("[3/%d] Checking configuration... ✅ %s", totalChecks, source))

		// Check 4: Upstream API key
		keyEnv := identity.EnvPrefix + "UPSTREAM_API_KEY"
		if strings.TrimSpace(cfg.Upstream.APIKey) != "" {
			logger.Info(fmt.Sprintf("[4/%d] Checking upstream API key... ✅ set", totalChecks))
		} else {
			logger.Warn(fmt.Sprintf("[4/%d] Checking upstream API key... ⚠️  not set (export %s)", totalChecks, keyEnv))
			allChecks = false
		}

		// Check 5: Store
		rt, rtErr := openRuntime(ctx, cfg, nil)
		if rtErr != nil {
			logger.Error(fmt.Sprintf("[5/%d] Checking %s store... ❌ %v", totalChecks, cfg.Store.Driver, rtErr))
			allChecks = false
		} else {
			defer func() { _ = rt.cache.Close() }()
			logger.Info(fmt.Sprintf("[5/%d] Checking %s store... ✅ %s", totalChecks, cfg.Store.Driver, storeLocation(cfg)),
				zap.String("driver", cfg.Store.Driver))
		}

		// Check 6: Cached data
		if rt != nil {
			summoners := len(rt.cache.Summoners())
			champions := rt.cache.Catalog().Len()
			staticVersion := rt.cache.StaticVersion().Value
			if champions == 0 {
				logger.Warn(fmt.Sprintf("[6/%d] Checking cached data... ⚠️  champion catalog empty (run '%s static refresh')", totalChecks, appName),
					zap.Int("summoners", summoners))
			} else {
				logger.Info(fmt.Sprintf("[6/%d] Checking cached data... ✅ %d summoners, %d champions (static %s)", totalChecks, summoners, champions, staticVersion),
					zap.Int("summoners", summoners),
					zap.Int("champions", champions),
					zap.String("static_version", staticVersion))
			}
		} else {
			logger.Warn(fmt.Sprintf("[6/%d] Checking cached data... ⚠️  skipped (store unavailable)", totalChecks))
		}

		// Check 7: Environment
		logger.Info(fmt.Sprintf("[7/%d] Checking environment... ✅ %s/%s", totalChecks, runtime.GOOS, runtime.GOARCH),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))

		logger.Info("")
		if allChecks {
			logger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			logger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		logger.Info("")
		logger.Info("=== End Diagnostics ===")
	},
}

var (
	doctorResetConfig bool
	doctorResetData   bool
	doctorResetAll    bool
)

var doctorPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show configuration and data paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.CLILogger
		identity := GetAppIdentity()

		configPath := config.DefaultConfigPath()
		dataDir := config.DefaultDataDir()

		logger.Info("Paths:")
		logger.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		logger.Info(fmt.Sprintf("  Data directory: %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return nil
		}
		logger.Info(fmt.Sprintf("  Store:          %s (%s)", storeLocation(cfg), cfg.Store.Driver))
		if cfg.Store.Driver == config.DriverLibsql && cfg.Store.URL == "" {
			if info, statErr := os.Stat(cfg.Store.Path); statErr == nil {
				logger.Info(fmt.Sprintf("  Database size:  %s (modified %s)", formatFileSize(info.Size()), formatTimeAgo(info.ModTime())))
			}
		}

		logger.Info("")
		logger.Info("Environment:")
		for _, name := range []string{"UPSTREAM_API_KEY", "ADMIN_TOKEN", "ENVIRONMENT"} {
			logger.Info("  " + identity.EnvPrefix + name + ": " + envStatus(identity.EnvPrefix+name))
		}
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or cached data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}
		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		logger := observability.CLILogger
		if doctorResetConfig {
			configPath := config.DefaultConfigPath()
			if configPath == "" {
				logger.Warn("Config path not resolved; skipping config reset")
			} else if err := removeIfExists(configPath); err != nil {
				return fmt.Errorf("remove config file: %w", err)
			} else {
				logger.Info("Config removed", zap.String("path", configPath))
			}
		}

		if doctorResetData {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			paths, err := localStoreFiles(cfg)
			if err != nil {
				return err
			}
			for _, path := range paths {
				if err := removeIfExists(path); err != nil {
					return fmt.Errorf("remove %s: %w", path, err)
				}
				logger.Info("Cached data removed", zap.String("path", path))
			}
		}
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(cmd.Context()); err != nil {
			return err
		}
		source := viper.ConfigFileUsed()
		if source == "" {
			source = "(no config file)"
		}
		observability.CLILogger.Info("Config is valid", zap.String("path", source))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorPathsCmd, doctorResetCmd, doctorValidateCmd)

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove the local store files")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

// storeLocation describes where the configured store keeps its data.
func storeLocation(cfg *config.Config) string {
	switch cfg.Store.Driver {
	case config.DriverLibsql:
		if cfg.Store.URL != "" {
			return "remote libsql"
		}
		abs, err := filepath.Abs(cfg.Store.Path)
		if err != nil {
			return cfg.Store.Path
		}
		return abs
	case config.DriverRedis:
		return "redis://" + cfg.Store.Redis.Addr
	default:
		abs, err := filepath.Abs(cfg.Store.Dir)
		if err != nil {
			return cfg.Store.Dir
		}
		return abs
	}
}

// localStoreFiles lists the files reset --data removes. Remote stores are
// not reset from the CLI.
func localStoreFiles(cfg *config.Config) ([]string, error) {
	switch cfg.Store.Driver {
	case config.DriverJSON:
		return []string{
			filepath.Join(cfg.Store.Dir, store.SummonersFile),
			filepath.Join(cfg.Store.Dir, store.VersionsFile),
			filepath.Join(cfg.Store.Dir, store.ChampionsFile),
		}, nil
	case config.DriverLibsql:
		if cfg.Store.URL != "" || cfg.Store.Path == ":memory:" {
			return nil, fmt.Errorf("remote libsql store configured; data reset is not supported")
		}
		path := strings.TrimPrefix(cfg.Store.Path, "file:")
		return []string{path, path + "-wal", path + "-shm"}, nil
	default:
		return nil, fmt.Errorf("%s store configured; data reset is not supported", cfg.Store.Driver)
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatTimeAgo returns a human-readable relative time
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d mins ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
