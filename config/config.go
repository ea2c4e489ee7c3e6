package config

import (
	"os"
	"strings"

	"sketchsync/pkg/logger"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Addr string

	// Postgres connection pieces, Supabase-style names.
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	// Token verification. JWKSURL feeds the remote key set; Secret is the
	// symmetric fallback for non-production setups.
	JWKSURL  string
	Secret   string
	Audience string

	// When DataDir is set, drawing snapshots go to local files instead of
	// the drawings table.
	DataDir string

	LogLevel string
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	cfg := Config{
		Addr:     env("ADDR", ":8080"),
		DBUser:   env("user", ""),
		DBPass:   env("password", ""),
		DBHost:   env("host", ""),
		DBPort:   env("port", "5432"),
		DBName:   env("dbname", ""),
		JWKSURL:  env("AUTH_JWKS_URL", ""),
		Secret:   env("SUPABASE_JWT_SECRET", ""),
		Audience: env("AUTH_AUDIENCE", "authenticated"),
		DataDir:  env("DATA_DIR", ""),
		LogLevel: env("LOG_LEVEL", ""),
	}
	return cfg
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
