// Command export dumps the item aggregate table as JSON, to stdout or
// a file. Read-only; safe to run while an ingestion pass is active.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"skyblock-ah-tracker/internal/config"
	"skyblock-ah-tracker/internal/repository"
	"skyblock-ah-tracker/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	out := flag.String("out", "", "output file (stdout when empty)")
	minCount := flag.Int64("min-count", 1, "drop items with fewer sales than this")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Configuration error: %v", err)
		os.Exit(2)
	}

	store, err := openStore(&cfg.Store)
	if err != nil {
		log.Printf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	rows, err := service.Export(context.Background(), store, *minCount)
	if err != nil {
		log.Printf("Export failed: %v", err)
		os.Exit(1)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Printf("Failed to create output file: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		log.Printf("Failed to write export: %v", err)
		os.Exit(1)
	}
	log.Printf("Exported %d items", len(rows))
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
