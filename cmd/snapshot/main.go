// Command snapshot rebuilds the current_averages table from the live
// fixed-price listings and exits. Exit codes match cmd/ingest: 0
// success, 1 failed snapshot, 2 configuration error.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"skyblock-ah-tracker/internal/cache"
	"skyblock-ah-tracker/internal/codec"
	"skyblock-ah-tracker/internal/config"
	"skyblock-ah-tracker/internal/hypixel"
	"skyblock-ah-tracker/internal/repository"
	"skyblock-ah-tracker/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Configuration error: %v", err)
		os.Exit(2)
	}
	if cfg.Hypixel.LiveURL == "" {
		log.Println("Configuration error: HYPIXEL_LIVE_URL is required")
		os.Exit(2)
	}

	store, err := openStore(&cfg.Store)
	if err != nil {
		log.Printf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	decodeCache := openCache(&cfg.Cache)
	if decodeCache != nil {
		defer decodeCache.Close()
	}

	client := hypixel.New(hypixel.Config{
		EndedURL: cfg.Hypixel.EndedURL,
		LiveURL:  cfg.Hypixel.LiveURL,
		APIKey:   cfg.Hypixel.APIKey,
		Timeout:  cfg.Hypixel.Timeout,
		Workers:  cfg.Hypixel.Workers,
	})
	snap := service.NewSnapshotService(client,
		codec.NewDecoder(decodeCache, cfg.Cache.TTL),
		store, cfg.Snapshot.MinSamples, cfg.Snapshot.File)

	items, err := snap.Run(context.Background())
	if err != nil {
		log.Printf("Snapshot failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot complete: %d items\n", items)
}

// openStore selects the store engine by configured driver.
func openStore(cfg *config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case "postgres", "postgresql":
		return repository.NewPostgresStore(cfg.PostgresDSN())
	case "mysql":
		return repository.NewMySQLStore(cfg.MySQLDSN())
	default: // sqlite
		return repository.NewSQLiteStore(cfg.Path)
	}
}

// openCache selects the decode-cache backend, nil when off.
func openCache(cfg *config.CacheConfig) cache.Cache {
	switch cfg.Type {
	case "memory":
		return cache.NewMemoryCache()
	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddress(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis cache unavailable, decoding without cache: %v", err)
			return nil
		}
		return c
	default:
		return nil
	}
}
