package conf

import (
	"log/slog"
	"strings"

	"github.com/defectscan/defectscan-go/internal/logging"
)

// ParseLogLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func ParseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
