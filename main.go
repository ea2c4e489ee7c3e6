package main

import (
	"net/http"
	"os"

	"sketchsync/config"
	"sketchsync/config/database"
	"sketchsync/pkg/auth"
	"sketchsync/pkg/engine"
	"sketchsync/pkg/logger"
	"sketchsync/room"
	"sketchsync/router"
	"sketchsync/store"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Log.Sync()

	cfg := config.Load()

	db := database.Connect(cfg)
	defer db.Close()

	// Snapshot backend is a deployment choice; the metadata API always
	// uses Postgres.
	var snapshots store.Store
	if cfg.DataDir != "" {
		snapshots = store.NewFileStore(cfg.DataDir)
		logger.Sugar.Infof("Storing drawing snapshots under %s", cfg.DataDir)
	} else {
		snapshots = store.NewPostgresStore(db)
	}

	// One engine instance for the whole process; every component that
	// touches documents gets this value.
	eng := engine.NewUpdateLog()

	saver := room.NewSaver(snapshots, eng.EmptyStateLen(), room.DefaultSaveDelay)
	registry := room.NewRegistry(eng, snapshots, saver)

	verifier := auth.NewVerifier(cfg.JWKSURL, cfg.Secret, cfg.Audience)
	if cfg.JWKSURL == "" && cfg.Secret == "" {
		logger.Sugar.Fatal("Neither AUTH_JWKS_URL nor SUPABASE_JWT_SECRET is set; cannot validate tokens")
	}

	handler := router.Setup(db, registry, verifier)

	logger.Sugar.Infof("sketchsync backend listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
