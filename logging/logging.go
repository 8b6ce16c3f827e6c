package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger  = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

// SetupLogger enables debug logging to the specified log file in addition to the console
func SetupLogger(logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Check if logger is already set up
	if isSetup {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger = zerolog.New(io.MultiWriter(console, logFile)).With().Timestamp().Logger().Level(zerolog.DebugLevel)

	logger.Debug().Msgf("--- proofcheck debug log started at %s ---", time.Now().Format(time.RFC3339))

	isSetup = true
	return nil
}

// SetOutput redirects all log output, mainly for tests
func SetOutput(w io.Writer, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// CloseLogger closes the log file
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Debug().Msgf("--- proofcheck debug log closed at %s ---", time.Now().Format(time.RFC3339))
		logFile.Close()
		logFile = nil
		isSetup = false
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	}
}

// Logger returns the current logger for structured events
func Logger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

// LogSubmissionScored logs the outcome of an automated scoring pass
func LogSubmissionScored(submissionID string, score float64, status string) {
	l := Logger()
	l.Info().
		Str("submission_id", submissionID).
		Float64("score", score).
		Str("status", status).
		Msg("submission scored")
}
