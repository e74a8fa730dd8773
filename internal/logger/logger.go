// Package logger sets up the process-wide zerolog logger, grounded
// directly on internal/shared/logger/logger.go: write to stderr/stdout/a
// file depending on config, switch to a pretty ConsoleWriter when asked,
// parse the configured level, and attach the caller when running at
// debug or below.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/6543/logfile-open"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger for the process.
func Setup(ctx context.Context, level string, pretty bool, noColor bool, logFile string) error {
	var file io.ReadWriteCloser
	switch logFile {
	case "", "stderr":
		file = os.Stderr
	case "stdout":
		file = os.Stdout
	default:
		openFile, err := logfile.OpenFileWithContext(ctx, logFile, 0o660)
		if err != nil {
			return fmt.Errorf("could not open log file %q: %w", logFile, err)
		}
		file = openFile
		noColor = true
	}

	log.Logger = zerolog.New(file).With().Timestamp().Logger()

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: file, NoColor: noColor})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unknown logging level: %s", level)
	}
	zerolog.SetGlobalLevel(lvl)

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		log.Logger = log.With().Caller().Logger()
	}

	log.Info().Msgf("log level: %s", zerolog.GlobalLevel().String())
	return nil
}
