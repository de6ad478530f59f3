// Package observability owns the process-wide loggers and the telemetry
// system shared by the CLI and the proxy server.
package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/riftproxy/riftproxy/internal/appid"
)

var (
	// CLILogger is used by one-shot commands (simple profile, human output).
	CLILogger *logging.Logger

	// ServerLogger is used by serve (structured profile, JSON on stderr).
	ServerLogger *logging.Logger
)

var levels = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// Logger returns the server logger when the server is running, otherwise the
// CLI logger. It may return nil before either is initialized.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// ParseLevel maps a configured level name onto a logging severity.
func ParseLevel(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "INFO", nil
	}
	if level, ok := levels[key]; ok {
		return level, nil
	}
	return "", fmt.Errorf("unknown log level %q", name)
}

// InitCLILogger builds CLILogger. verbose lowers the level to debug.
func InitCLILogger(serviceName string, verbose bool) error {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		return fmt.Errorf("initialize CLI logger: %w", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
	return nil
}

// InitServerLogger builds ServerLogger. Every entry carries the service,
// the deployment environment and, when given, the telemetry namespace.
// An unknown level is an error.
func InitServerLogger(serviceName, level string, namespace ...string) error {
	severity, err := ParseLevel(level)
	if err != nil {
		return err
	}

	static := map[string]any{}
	if len(namespace) > 0 && namespace[0] != "" {
		static["namespace"] = namespace[0]
	}

	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: severity,
		Service:      serviceName,
		Environment:  deploymentEnvironment(),
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("initialize server logger: %w", err)
	}

	ServerLogger = logger
	return nil
}

// SetServerLevel changes the server logger level at runtime.
func SetServerLevel(name string) error {
	severity, err := ParseLevel(name)
	if err != nil {
		return err
	}
	if ServerLogger == nil {
		return nil
	}

	switch severity {
	case "TRACE":
		ServerLogger.SetLevel(logging.TRACE)
	case "DEBUG":
		ServerLogger.SetLevel(logging.DEBUG)
	case "WARN":
		ServerLogger.SetLevel(logging.WARN)
	case "ERROR":
		ServerLogger.SetLevel(logging.ERROR)
	default:
		ServerLogger.SetLevel(logging.INFO)
	}
	return nil
}

// deploymentEnvironment reads RIFTPROXY_ENVIRONMENT, defaulting to production.
func deploymentEnvironment() string {
	if env := strings.TrimSpace(os.Getenv(appid.EnvPrefix + "ENVIRONMENT")); env != "" {
		return env
	}
	return "production"
}
