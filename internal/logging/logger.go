// Package logging builds the service logger: JSON to stdout locally, Loki
// when a remote endpoint is configured.
package logging

import (
	"log/slog"
	"os"

	"github.com/grafana/loki-client-go/loki"
	slogloki "github.com/samber/slog-loki/v3"
)

// GetLogger returns the service logger. An empty URL selects local JSON
// logging.
func GetLogger(lokiURL string) *slog.Logger {
	if lokiURL == "" {
		return localLogger()
	}
	return remoteLogger(lokiURL)
}

func localLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("service", "psikit-payments")
}

func remoteLogger(url string) *slog.Logger {
	lokiConfig, _ := loki.NewDefaultConfig(url)
	client, _ := loki.New(lokiConfig)

	return slog.New(slogloki.Option{
		Level:  slog.LevelInfo,
		Client: client,
	}.NewLokiHandler()).With("service", "psikit-payments")
}
