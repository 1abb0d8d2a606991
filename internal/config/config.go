/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backend selection.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	DBBackend   DatabaseBackend
	DBDSN       string
	Timezone    string
	FrozenTime  string // RFC3339; when set the process runs on a simulated clock
	OpsBind     string

	InventoryInterval  time.Duration
	TuningFile         string
	RouteAliasesFile   string
	ProgramadosCSVPath string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	CacheEnabled          bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	EventBus EventBusBackend
	NATSURL  string
}

// Load reads environment variables, applies defaults, and validates the result.
// A .env file in the working directory is honoured when present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnvAny([]string{"FLEETROTA_ENV"}, "development"),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"FLEETROTA_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"FLEETROTA_DB_DSN", "DATABASE_URL"}, ""),
		Timezone:    getEnvAny([]string{"FLEETROTA_TIMEZONE"}, "UTC"),
		FrozenTime:  getEnvAny([]string{"FLEETROTA_FROZEN_TIME"}, ""),
		OpsBind:     getEnvAny([]string{"FLEETROTA_OPS_BIND"}, "127.0.0.1:9000"),

		InventoryInterval:  time.Duration(getEnvIntAny([]string{"FLEETROTA_INVENTORY_INTERVAL_SECONDS"}, 30)) * time.Second,
		TuningFile:         getEnvAny([]string{"FLEETROTA_TUNING_FILE"}, ""),
		RouteAliasesFile:   getEnvAny([]string{"FLEETROTA_ROUTE_ALIASES_FILE"}, ""),
		ProgramadosCSVPath: getEnvAny([]string{"FLEETROTA_PROGRAMADOS_CSV"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"FLEETROTA_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"FLEETROTA_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"FLEETROTA_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"FLEETROTA_LEADER_ELECTION_ENABLED"}, false),
		CacheEnabled:          getEnvBoolAny([]string{"FLEETROTA_CACHE_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"FLEETROTA_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"FLEETROTA_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"FLEETROTA_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"FLEETROTA_INSTANCE_ID", "HOSTNAME"}, ""),

		EventBus: EventBusBackend(strings.ToLower(getEnvAny([]string{"FLEETROTA_EVENTBUS"}, string(EventBusMemory)))),
		NATSURL:  getEnvAny([]string{"FLEETROTA_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("FLEETROTA_DB_DSN or DATABASE_URL must be provided")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid FLEETROTA_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.InventoryInterval <= 0 {
		cfg.InventoryInterval = 30 * time.Second
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.FrozenTime != "" {
		return nil, fmt.Errorf("FLEETROTA_FROZEN_TIME must not be set in production")
	}

	return cfg, nil
}

// Location returns the operating timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
