package config

import (
	"database/sql"
	"errors"
	"log"
	"os"
	"strconv"
)

type Config struct {
	Port              int
	DatabaseURL       string
	RedisAddr         string
	CacheDir          string
	APIToken          string
	MDBBaseURL        string
	MDBToken          string
	MDBConcurrent     int
	MDBDurationSecs   int
	WorkerConcurrency int
}

func Load() *Config {
	return &Config{
		Port:              envInt("PORT", 8080),
		DatabaseURL:       env("DATABASE_URL", "postgres://streamvault:streamvault@db:5432/streamvault?sslmode=disable"),
		RedisAddr:         env("REDIS_ADDR", "redis:6379"),
		CacheDir:          env("CACHE_DIR", "/data/cache"),
		APIToken:          env("API_TOKEN", ""),
		MDBBaseURL:        env("MDB_BASE_URL", ""),
		MDBToken:          env("MDB_TOKEN", ""),
		MDBConcurrent:     envInt("MDB_RATE_CONCURRENT", 30),
		MDBDurationSecs:   envInt("MDB_RATE_DURATION_SECONDS", 1),
		WorkerConcurrency: envInt("WORKER_CONCURRENCY", 4),
	}
}

// MergeFromDB overlays control-plane settings over the environment values.
// Called once at startup; later changes arrive through the settings monitor.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "mdb_token":
			c.MDBToken = value
		case "mdb_rate_concurrent":
			if v, err := strconv.Atoi(value); err == nil {
				c.MDBConcurrent = v
			}
		case "mdb_rate_duration_seconds":
			if v, err := strconv.Atoi(value); err == nil {
				c.MDBDurationSecs = v
			}
		}
	}
}

// Validate checks the settings without which the process cannot do useful
// work. Called after MergeFromDB so a token stored in the settings table
// counts; a failure aborts startup.
func (c *Config) Validate() error {
	if c.MDBToken == "" {
		return errors.New("no metadata token configured: set MDB_TOKEN or the mdb_token setting")
	}
	return nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
