package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	DataPath        string
	NATSURL         string
	KVBucket        string
	Preload         string
	LoadRate        float64
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("SEMCACHE_CONFIG", "configs/semcache.yaml"),
		"Path to cache configuration file (env: SEMCACHE_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("SEMCACHE_CONFIG", "configs/semcache.yaml"),
		"Path to cache configuration file (env: SEMCACHE_CONFIG)")

	fs.StringVar(&cfg.DataPath, "data",
		getEnv("SEMCACHE_DATA", ""),
		"JSON file of records to serve (env: SEMCACHE_DATA)")

	fs.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("SEMCACHE_NATS_URL", ""),
		"NATS server URL; enables event publishing and peer sync (env: SEMCACHE_NATS_URL)")

	fs.StringVar(&cfg.KVBucket, "kv-bucket",
		getEnv("SEMCACHE_KV_BUCKET", ""),
		"JetStream KV bucket to load records from instead of --data (env: SEMCACHE_KV_BUCKET)")

	fs.StringVar(&cfg.Preload, "preload",
		getEnv("SEMCACHE_PRELOAD", "none"),
		"Preload strategy: none, full, groups (env: SEMCACHE_PRELOAD)")

	fs.Float64Var(&cfg.LoadRate, "load-rate",
		getEnvFloat("SEMCACHE_LOAD_RATE", 0),
		"Max source loads per second, 0 for unlimited (env: SEMCACHE_LOAD_RATE)")

	fs.StringVar(&cfg.HTTPAddr, "http-addr",
		getEnv("SEMCACHE_HTTP_ADDR", ":9090"),
		"Address serving /metrics, /cache and /records (env: SEMCACHE_HTTP_ADDR)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SEMCACHE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SEMCACHE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SEMCACHE_LOG_FORMAT", "json"),
		"Log format: json, text (env: SEMCACHE_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("SEMCACHE_DEBUG", false),
		"Enable debug mode (env: SEMCACHE_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("SEMCACHE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: SEMCACHE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	switch {
	case cfg.KVBucket != "" && cfg.NATSURL == "":
		return fmt.Errorf("--kv-bucket requires --nats-url")
	case cfg.KVBucket == "" && cfg.DataPath == "":
		return fmt.Errorf("one of --data or --kv-bucket is required")
	case cfg.KVBucket != "" && cfg.DataPath != "":
		return fmt.Errorf("--data and --kv-bucket are mutually exclusive")
	}

	if !slices.Contains([]string{"none", "full", "groups"}, cfg.Preload) {
		return fmt.Errorf("invalid preload strategy: %s", cfg.Preload)
	}

	if cfg.LoadRate < 0 {
		return fmt.Errorf("invalid load rate: %v", cfg.LoadRate)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(fs.Output(), `%s - read-through cache server

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(fs.Output(), `
Examples:
  # Serve records from a JSON file, preloading every group
  %s --config=configs/semcache.yaml --data=records.json --preload=groups

  # Load from a JetStream KV bucket and sync invalidations with peers
  %s --nats-url=nats://localhost:4222 --kv-bucket=records

  # Validate configuration only
  %s --validate --data=records.json

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
