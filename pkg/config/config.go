// Package config loads GridDFS's runtime configuration from a YAML file
// with environment-variable overrides, following torua's getenv/mustGetenv
// idiom generalized into a loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime tunable a GridDFS binary needs, plus the
// addressing needed to wire the transport and storage backends.
type Config struct {
	// NATSURL is the message bus address backing both the fanout and
	// direct-request transport contracts.
	NATSURL string `yaml:"nats_url"`

	// MetadataPath is the bbolt database file used by the coordinator.
	MetadataPath string `yaml:"metadata_path"`

	// StorageRoot is the directory a data node persists blocks under.
	StorageRoot string `yaml:"storage_root"`

	CoordinatorListenAddr string `yaml:"coordinator_listen_addr"`

	// BlockSize is the default block size in bytes used by the client
	// when splitting a file for upload.
	BlockSize int64 `yaml:"block_size"`

	// MaxUploadSize rejects create-upload-plan requests above this size.
	MaxUploadSize int64 `yaml:"max_upload_size"`

	// HeartbeatInterval is how often a data node emits a heartbeat.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// RequestTimeout bounds a client's block request round-trip.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StorageCapacity is the per-node advertised capacity in bytes.
	StorageCapacity int64 `yaml:"storage_capacity"`

	// StorageMinFreeRatio is the admission policy's reserved-space floor.
	StorageMinFreeRatio float64 `yaml:"storage_min_free_ratio"`

	// StorageAcceptProbability is P in the admission policy's soft
	// load-balancing rule.
	StorageAcceptProbability float64 `yaml:"storage_accept_probability"`

	// SessionDeadline bounds how long an upload session may stay pending
	// before the coordinator fails it.
	SessionDeadline time.Duration `yaml:"session_deadline"`
}

// Default returns GridDFS's baseline configuration: 64 MiB blocks, 10 GiB
// max upload, 80% base accept probability, 10% reserved free space, 30s
// request timeout.
func Default() Config {
	return Config{
		NATSURL:                  "nats://127.0.0.1:4222",
		MetadataPath:             "griddfs-metadata.db",
		StorageRoot:              "griddfs-blocks",
		CoordinatorListenAddr:    ":8080",
		BlockSize:                64 * 1024 * 1024,
		MaxUploadSize:            10 * 1024 * 1024 * 1024,
		HeartbeatInterval:        15 * time.Second,
		RequestTimeout:           30 * time.Second,
		StorageCapacity:          100 * 1024 * 1024 * 1024,
		StorageMinFreeRatio:      0.10,
		StorageAcceptProbability: 0.8,
		SessionDeadline:          10 * time.Minute,
	}
}

// Load reads a YAML file at path (if non-empty and present) over the
// defaults, then applies environment-variable overrides, mirroring the
// precedence torua's binaries use for env vars: explicit configuration
// wins over defaults, and environment wins over file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRIDDFS_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("GRIDDFS_METADATA_PATH"); v != "" {
		cfg.MetadataPath = v
	}
	if v := os.Getenv("GRIDDFS_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	if v := os.Getenv("GRIDDFS_COORDINATOR_LISTEN_ADDR"); v != "" {
		cfg.CoordinatorListenAddr = v
	}
	if v := getenvInt64("GRIDDFS_BLOCK_SIZE"); v != 0 {
		cfg.BlockSize = v
	}
	if v := getenvInt64("GRIDDFS_MAX_UPLOAD_SIZE"); v != 0 {
		cfg.MaxUploadSize = v
	}
	if v := getenvDuration("GRIDDFS_HEARTBEAT_INTERVAL"); v != 0 {
		cfg.HeartbeatInterval = v
	}
	if v := getenvDuration("GRIDDFS_REQUEST_TIMEOUT"); v != 0 {
		cfg.RequestTimeout = v
	}
	if v := getenvInt64("GRIDDFS_STORAGE_CAPACITY"); v != 0 {
		cfg.StorageCapacity = v
	}
	if v := getenvFloat("GRIDDFS_STORAGE_MIN_FREE_RATIO"); v != 0 {
		cfg.StorageMinFreeRatio = v
	}
	if v := getenvFloat("GRIDDFS_STORAGE_ACCEPT_PROBABILITY"); v != 0 {
		cfg.StorageAcceptProbability = v
	}
	if v := getenvDuration("GRIDDFS_SESSION_DEADLINE"); v != 0 {
		cfg.SessionDeadline = v
	}
}

func getenvInt64(k string) int64 {
	v := os.Getenv(k)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func getenvFloat(k string) float64 {
	v := os.Getenv(k)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func getenvDuration(k string) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// MustGetenv returns the named environment variable or terminates the
// process, for configuration a binary cannot start without (e.g. a data
// node's NODE_ID). Kept as torua's mustGetenv, generalized to accept the
// fatal function so tests can intercept it.
func MustGetenv(k string, fatalf func(format string, args ...any)) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	fatalf("missing required environment variable %s", k)
	return ""
}

// Getenv returns the named environment variable or def if unset/empty.
func Getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
