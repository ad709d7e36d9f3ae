package logger

import (
	"io"
	"strings"
	"time"

	"github.com/bilal/clashstat/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. Logs go to w (stderr in main) so that
// report output on stdout stays machine readable.
func Init(lcfg config.LoggingConfig, w io.Writer) {
	// level
	level := strings.ToLower(lcfg.Level)
	levelVal := zerolog.InfoLevel
	switch level {
	case "debug":
		levelVal = zerolog.DebugLevel
	case "info":
		levelVal = zerolog.InfoLevel
	case "warn", "warning":
		levelVal = zerolog.WarnLevel
	case "error":
		levelVal = zerolog.ErrorLevel
	case "disabled", "off":
		levelVal = zerolog.Disabled
	}
	zerolog.SetGlobalLevel(levelVal)

	// format
	if strings.ToLower(lcfg.Format) == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		// default console
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}
