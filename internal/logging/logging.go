package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. Development environments get a
// console writer, everything else emits JSON lines.
func Init(levelStr, appEnv string) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = zerolog.InfoLevel
		log.Warn().Err(err).Msgf("invalid log level %q, defaulting to info", levelStr)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if env := strings.ToLower(appEnv); env == "development" || env == "dev" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}
