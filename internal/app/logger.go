package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger. Production always logs JSON;
// elsewhere LOG_FORMAT picks between json, text and the default pretty text
// output without source locations.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg.IsProduction() || (cfg != nil && cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	if cfg != nil && cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
}
