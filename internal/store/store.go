// Package store persists analysis checkpoints, cached results and call
// records behind a minimal key-value interface.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Store is a last-write-wins key-value store.
// Get reports ok=false, with a nil error, when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config selects and configures a backend.
type Config struct {
	Backend string

	// Path is the directory for the file backend and the database file for sqlite.
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	NATSURL    string
	NATSBucket string
}

// Open creates the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file backend requires a path")
		}
		return NewFileStore(cfg.Path)
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSQLiteStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case BackendNATS:
		return NewNATSStore(ctx, NATSConfig{URL: cfg.NATSURL, Bucket: cfg.NATSBucket})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitize makes s safe as one key segment on every backend.
func sanitize(s string) string {
	s = unsafeKeyChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}

func join(parts ...string) string {
	for i, p := range parts {
		parts[i] = sanitize(p)
	}
	return strings.Join(parts, "/")
}

// CacheKey addresses the final analysis of a document.
func CacheKey(contentHash, fileName string) string {
	return join("analysis", contentHash, fileName)
}

// CheckpointKey addresses the in-progress state of one run configuration.
func CheckpointKey(contentHash, fileName, fingerprint string) string {
	return join("checkpoint", contentHash, fileName, fingerprint)
}

// TypeKey addresses a single analysis type's result for a document.
func TypeKey(contentHash, fileName, analysisType string) string {
	return join("result", contentHash, fileName, analysisType)
}

// CallKey addresses one recorded provider call.
func CallKey(runID, callID string) string {
	return join("calls", runID, callID)
}

// GetJSON loads key into v. ok is false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v as JSON under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
