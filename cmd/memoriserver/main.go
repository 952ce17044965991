// Command memoriserver wires the conversational memory engine's packages
// together into a runnable process: Store, Classifier, Capture Layer, and
// Search Dispatcher. It intentionally does nothing beyond construction and
// a readiness check; the capture hooks, search dispatcher, and
// consolidation service are called by the surrounding application (a chat
// UI, an HTTP API, tests), none of which is in scope here.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/kittclouds/memori/internal/capture"
	"github.com/kittclouds/memori/internal/classifier"
	"github.com/kittclouds/memori/internal/config"
	"github.com/kittclouds/memori/internal/consolidation"
	"github.com/kittclouds/memori/internal/metadata"
	"github.com/kittclouds/memori/internal/search"
	"github.com/kittclouds/memori/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dsn := config.DatabaseURL()
	logger.Info("opening store", "dsn", dsn)

	s, err := store.Open(dsn)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	classifierSvc := classifier.NewService(
		classifier.Config{Provider: classifier.ProviderFake},
		map[classifier.Provider]classifier.ChatBackend{
			classifier.ProviderFake: &classifier.FakeBackend{Response: "{}"},
		},
	)

	hook := capture.NewHook(s, classifierSvc, capture.Policy{
		ChatMemoryEnabled:      true,
		EmbeddingMemoryEnabled: true,
		HookTimeout:            config.HookTimeout(),
	}, nil)
	_ = hook

	metadataStrategy := metadata.New(s, config.MetadataConfig())

	dispatcher := search.NewDispatcher()
	dispatcher.Register("fts", &search.FTSStrategy{Store: s})
	dispatcher.Register("metadata", &search.MetadataStrategy{Inner: metadataStrategy})
	dispatcher.Register("category", &search.CategoryStrategy{Store: s})
	dispatcher.Register("temporal", &search.TemporalStrategy{Store: s, Now: time.Now})

	consolidationSvc := consolidation.NewService(consolidation.NewRepo(s))
	_ = consolidationSvc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.GetStats(ctx, "_startup_check"); err != nil {
		logger.Error("store readiness check failed", "error", err)
		os.Exit(1)
	}

	logger.Info("memoriserver ready",
		"hook_timeout", config.HookTimeout(),
		"strategies", []string{"fts", "metadata", "category", "temporal"},
	)
}
