// Command ingest runs one ended-auction ingestion pass and exits.
// Exit codes: 0 committed run (zero new auctions included), 1 aborted
// run, 2 configuration error. The external scheduler owns retries.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"skyblock-ah-tracker/internal/cache"
	"skyblock-ah-tracker/internal/codec"
	"skyblock-ah-tracker/internal/config"
	"skyblock-ah-tracker/internal/hypixel"
	"skyblock-ah-tracker/internal/normalize"
	"skyblock-ah-tracker/internal/opsserver"
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
	if cfg.Hypixel.EndedURL == "" {
		log.Println("Configuration error: HYPIXEL_API_URL is required")
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

	var ops *opsserver.Server
	if cfg.Ops.Addr != "" {
		ops = opsserver.New(cfg.Ops.Addr, store)
		ops.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ops.Shutdown(ctx)
		}()
	}

	client := hypixel.New(hypixel.Config{
		EndedURL: cfg.Hypixel.EndedURL,
		LiveURL:  cfg.Hypixel.LiveURL,
		APIKey:   cfg.Hypixel.APIKey,
		Timeout:  cfg.Hypixel.Timeout,
		Workers:  cfg.Hypixel.Workers,
	})
	normalizer := normalize.New(codec.NewDecoder(decodeCache, cfg.Cache.TTL))
	ingest := service.NewIngestService(client, normalizer, store, cfg.Run.LeaseTTL)

	run, err := ingest.Run(context.Background())
	if err != nil {
		log.Printf("Run aborted: %v", err)
		fmt.Println(service.Summary(run))
		os.Exit(1)
	}

	fmt.Println(service.Summary(run))
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

// openCache selects the decode-cache backend, nil when off. A dead
// Redis downgrades to no cache rather than failing the run.
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
