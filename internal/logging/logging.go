package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"undercover-arena/internal/config"
)

var output io.Writer = os.Stdout

// Writer returns the destination Init configured, for other log producers
// (request logging) that should land in the same place.
func Writer() io.Writer {
	return output
}

// Init configures the global zerolog logger from config. When cfg.File is
// set, output goes to a size-capped file instead of stdout.
func Init(cfg config.LogConfig) error {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	dest := io.Writer(os.Stdout)
	if cfg.File != "" {
		w, err := newSizeLimitedWriter(cfg.File, cfg.MaxMB)
		if err != nil {
			return err
		}
		dest = w
	}
	output = dest
	if cfg.Pretty {
		dest = zerolog.ConsoleWriter{Out: dest}
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(dest).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
	return nil
}
