package cmd

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// newLogger builds the server logger from log.level and log.format.
// Unknown levels fall back to info, unknown formats to text.
func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(viper.GetString("log.format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
