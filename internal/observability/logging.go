package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log files under data/logs/ are rotated in place once they pass this size:
// the current file is renamed to <path>.1 (replacing any previous rotation)
// and a fresh file is started.
const logRotateBytes = 10 << 20

var logSink io.Writer = os.Stdout

// InitLogger wires zerolog as the process logger. When logPath is set, log
// lines go only to that file so stdout stays clean for the CLI renderer; a
// file that cannot be opened falls back to stdout with a note on stderr.
// The stdlib logger is redirected through zerolog so nothing bypasses it.
func InitLogger(logPath, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	w := io.Writer(os.Stdout)
	if logPath != "" {
		rotateIfLarge(logPath)
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "log file %q unavailable, using stdout: %v\n", logPath, err)
		}
	}
	logSink = w
	log.Logger = log.Output(w).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(parseLevel(level))
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// AttachOTelLogBridge tees the process logger into the OTLP log pipeline in
// addition to the sink InitLogger chose. Call after InitOTel so the bridge
// picks up the registered provider.
func AttachOTelLogBridge(name string) {
	w := zerolog.MultiLevelWriter(logSink, NewOTelWriter(name))
	log.Logger = log.Output(w).With().Timestamp().Logger()
	stdlog.SetOutput(log.Logger)
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func rotateIfLarge(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < logRotateBytes {
		return
	}
	_ = os.Rename(path, path+".1")
}
