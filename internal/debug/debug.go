package debug

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (startup, fetch failures)
	LevelLive    = 2 // Live info (frames cached, clients connecting)
	LevelVerbose = 3 // Verbose (config details, per-tick decisions)
	LevelTrace   = 4 // Trace (every chunk written)
)

var (
	level  int
	output io.Writer = os.Stdout
	logger           = zerolog.Nop()
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (startup, fetch failures)
// 2 = live info (frames cached, stream sessions)
// 3 = verbose (configuration, updater decisions)
// 4 = trace (every multipart chunk)
func Init(debugLevel int) {
	level = debugLevel
	rebuild()
}

// SetOutput redirects log lines (JSON, one per line) to w.
func SetOutput(w io.Writer) {
	output = w
	rebuild()
}

func rebuild() {
	if level <= LevelOff {
		logger = zerolog.Nop()
		return
	}
	logger = zerolog.New(output).
		Level(zerolog.TraceLevel).
		With().
		Timestamp().
		Str("app", "camstream").
		Logger()
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo {
		logger.Info().Msgf(format, args...)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo {
		logger.Info().Interface("value", value).Msg(name)
	}
}

// FetchFailed reports one failed snapshot fetch (level 1).
func FetchFailed(url string, err error, took time.Duration) {
	if level >= LevelInfo {
		logger.Error().
			Err(err).
			Str("url", url).
			Dur("took", took).
			Msg("error fetching frame")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive {
		logger.Debug().Str("tier", "live").Msgf(format, args...)
	}
}

// FrameCached prints a successful cache update (level 2).
func FrameCached(size int, took time.Duration) {
	if level >= LevelLive {
		logger.Debug().
			Str("tier", "live").
			Int("bytes", size).
			Dur("took", took).
			Msg("frame cached")
	}
}

// Session prints a stream session lifecycle event (level 2).
func Session(id, transport, event string, sent int) {
	if level >= LevelLive {
		logger.Debug().
			Str("tier", "live").
			Str("session", id).
			Str("transport", transport).
			Int("sent", sent).
			Msg(event)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose {
		logger.Debug().Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose {
		logger.Debug().Str("struct", fmt.Sprintf("%+v", v)).Msg(name)
	}
}

// Section prints a section marker (level 3).
func Section(name string) {
	if level >= LevelVerbose {
		logger.Debug().Str("section", name).Msg("section")
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace {
		logger.Trace().Msgf(format, args...)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo {
		logger.Error().Err(err).Msg("error")
	}
}
