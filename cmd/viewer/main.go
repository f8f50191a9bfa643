package main

import (
	"dm-relay/internal"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"github.com/Netflix/go-env"
)

type viewerConfig struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config viewerConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in Read-Only mode
	// BypassLockGuard allows opening while the relay holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	stats := func() map[string]any {
		return map[string]any{
			"Status": "Viewer Mode (Read-Only)",
			"Time":   time.Now().Format(time.RFC822),
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/inspect", internal.InspectHandler(db, internal.DefaultMapper, stats))

	address := fmt.Sprintf("localhost:%d", config.DebugPort)
	fmt.Printf("Viewer started at http://%s/inspect?prefix=conv:\n", address)
	if err := http.ListenAndServe(address, mux); err != nil {
		log.Printf("Viewer stopped: %v", err)
	}
}
