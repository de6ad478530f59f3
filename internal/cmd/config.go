package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/riftproxy/riftproxy/internal/config"
)

var (
	configInitOut   string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := strings.TrimSpace(configInitOut)
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if path == "" {
			return errors.New("no config directory available; use --out")
		}

		if err := writeStarterConfig(path, configInitForce); err != nil {
			return err
		}
		cmd.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		out, err := renderRedacted(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func writeStarterConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	content, err := config.StarterYAML()
	if err != nil {
		return err
	}

	// #nosec G301 -- config directories use 0755 like other XDG directories
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func renderRedacted(cfg *config.Config) ([]byte, error) {
	redacted := *cfg
	redacted.Upstream.APIKey = redact(redacted.Upstream.APIKey)
	redacted.Store.AuthToken = redact(redacted.Store.AuthToken)
	redacted.Store.Redis.Password = redact(redacted.Store.Redis.Password)

	settings := map[string]any{}
	if err := mapstructure.Decode(redacted, &settings); err != nil {
		return nil, fmt.Errorf("flatten config: %w", err)
	}
	out, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}

func redact(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}
	return "********"
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOut, "out", "", "path to write (default is the user config directory)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
