package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storedesign/internal/autosave"
	"storedesign/internal/conflict"
	mcpserver "storedesign/internal/mcp"
	"storedesign/internal/persist"
	"storedesign/internal/service"
	"storedesign/internal/storage"
)

func main() {
	// Best-effort: a missing .env just means plain environment config.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dataDir := envStr("STOREDESIGN_DATA_DIR", defaultDataDir())
	draftsDir := envStr("STOREDESIGN_DRAFTS_DIR", filepath.Join(dataDir, "drafts"))

	db, err := storage.New(filepath.Join(dataDir, "storedesign.db"), draftsDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	archive := storage.NewBackupArchive(db)

	saver, err := persist.NewSaver(persist.Endpoint{
		Driver:   envStr("STOREDESIGN_DRIVER", "sqlite"),
		Host:     os.Getenv("STOREDESIGN_DB_HOST"),
		Port:     envInt("STOREDESIGN_DB_PORT", 0),
		Database: os.Getenv("STOREDESIGN_DB_NAME"),
		Username: os.Getenv("STOREDESIGN_DB_USER"),
		Password: os.Getenv("STOREDESIGN_DB_PASSWORD"),
		SSLMode:  os.Getenv("STOREDESIGN_DB_SSLMODE"),
		Path:     envStr("STOREDESIGN_SQLITE_PATH", filepath.Join(dataDir, "layouts.db")),
		BaseURL:  os.Getenv("STOREDESIGN_HTTP_URL"),
		Token:    os.Getenv("STOREDESIGN_HTTP_TOKEN"),
	})
	if err != nil {
		log.Fatalf("Failed to create persistence driver: %v", err)
	}
	defer saver.Close()

	conflicts := conflict.NewService(archive)
	emitter := &service.LogEmitter{Logf: log.Printf}

	design := service.NewDesignService(ctx, service.Config{
		StoreID:   envStr("STOREDESIGN_STORE_ID", "default"),
		EditorID:  envStr("STOREDESIGN_EDITOR_ID", defaultEditorID()),
		DraftsDir: draftsDir,
		Autosave: autosave.Config{
			Debounce:    envDur("STOREDESIGN_DEBOUNCE", 3*time.Second),
			RetryDelay:  envDur("STOREDESIGN_RETRY_DELAY", 2*time.Second),
			MaxAttempts: envInt("STOREDESIGN_MAX_ATTEMPTS", 3),
		},
		PresenceInterval: envDur("STOREDESIGN_PRESENCE_INTERVAL", 10*time.Second),
		BackupEvery:      envDur("STOREDESIGN_BACKUP_EVERY", 5*time.Minute),
	}, saver, conflicts, archive, emitter, nil)

	if pc, ok := saver.(conflict.PresenceClient); ok {
		design.SetPresenceClient(pc)
	}

	if err := design.Open(ctx); err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	srv := mcpserver.New(design)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ServeStdio() }()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Printf("MCP server error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if design.ShouldWarnOnExit() {
		log.Println("Flushing unsaved changes...")
	}
	if err := design.Close(shutdownCtx); err != nil {
		log.Printf("Final save failed: %v", err)
	}
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "storedesign")
}

func defaultEditorID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "editor"
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
