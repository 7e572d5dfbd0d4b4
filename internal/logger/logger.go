package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sam-warren/cedhtools/internal/config"
)

func New(cfg *config.Config) zerolog.Logger {
	return SetLevel(ParseLevel(cfg.Log.Level))
}

func SetLevel(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	logger = logger.Level(level)

	return logger
}

// ParseLevel maps a configured level name to zerolog, defaulting to info
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
