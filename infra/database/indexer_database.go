package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// PostgresConfig holds database pool configuration.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPostgresConfig returns optimized defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewPostgres connects a sqlx pool over the pgx stdlib driver.
func NewPostgres(databaseURL string) (*sqlx.DB, error) {
	return NewPostgresWithConfig(databaseURL, DefaultPostgresConfig())
}

func NewPostgresWithConfig(databaseURL string, cfg *PostgresConfig) (*sqlx.DB, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}

	// Simple protocol avoids prepared-statement conflicts behind poolers and
	// permits multi-statement schema migrations.
	url := databaseURL
	if strings.Contains(url, "?") {
		url += "&default_query_exec_mode=simple_protocol"
	} else {
		url += "?default_query_exec_mode=simple_protocol"
	}

	db, err := sqlx.Connect("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

// NewRedis connects a redis client from a URL.
func NewRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
