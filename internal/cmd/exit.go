package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/core"
	"github.com/riftproxy/riftproxy/internal/observability"
)

// ExitCodeFor picks the semantic exit code for a failed command.
func ExitCodeFor(err error) foundry.ExitCode {
	var cfgErr *configError
	if stderrors.As(err, &cfgErr) {
		return foundry.ExitConfigInvalid
	}

	switch core.KindOf(err) {
	case core.KindNetworkFailure, core.KindServiceUnavailable, core.KindGatewayTimeout,
		core.KindServerError, core.KindBadGateway, core.KindRateLimited:
		return foundry.ExitExternalServiceUnavailable
	}

	if stderrors.Is(err, os.ErrNotExist) {
		return foundry.ExitFileNotFound
	}
	return foundry.ExitFailure
}

// Exit reports a command failure and exits with ExitCodeFor(err).
func Exit(err error) {
	ExitWithCode(observability.Logger(), ExitCodeFor(err), "Command execution failed", err)
}

// ExitWithCode exits the program with a semantic foundry exit code and logs
// the error. logger may be nil for failures before logging is set up.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID))
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}

	var upstreamErr *core.UpstreamError
	if stderrors.As(err, &upstreamErr) {
		fields = append(fields,
			zap.String("upstream_kind", upstreamErr.Kind.String()),
			zap.String("upstream_endpoint", upstreamErr.Endpoint),
			zap.Bool("blocked_locally", upstreamErr.Local))
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Error(msg, fields...)
	_ = logger.Sync()

	os.Exit(info.Code)
}

// ExitWithCodeStderr is a variant that writes to stderr without a logger.
// Use this for early failures before logger initialization.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d\n", exitCode)
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}

// configError marks failures to load or validate configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return "load config: " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

func cliLogger() *logging.Logger {
	return observability.Logger()
}
