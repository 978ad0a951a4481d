package cli

import (
	"context"
	"fmt"

	"universe/internal/config"
	"universe/internal/dateutil"
	"universe/internal/events"
	appLog "universe/internal/log"
	"universe/internal/store"
	"universe/internal/upstream"
)

// newManager wires the cache store, upstream client and clock described by cfg.
func newManager(ctx context.Context, cfg *config.Config) (*events.Manager, error) {
	loc, err := dateutil.ResolveLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	clock := dateutil.SystemClock{Location: loc}

	var blobs store.BlobStore
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		blobs = store.NewMemoryStore(clock.Now)
		appLog.Info("events cache", "backend", config.CacheBackendMemory)
	default:
		fs, err := store.NewFileStore(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		blobs = fs
		appLog.Info("events cache", "backend", config.CacheBackendFile,
			"path", fs.Path(), "present", store.Exists(ctx, fs))
	}

	client, err := upstream.NewClient(cfg.UpstreamClientConfig(), nil)
	if err != nil {
		return nil, err
	}

	return events.NewManager(blobs, client, events.WithClock(clock), events.WithLocation(loc))
}
