// Package store persists the chat session list as a single keyed blob.
//
// The blob holds the full list. It is read once at startup and
// overwritten in full on every mutation; there is no schema version.
// Backends: a JSON file, or one row in a SQL table (sqlite or postgres).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/antron/pkg/core/types"
)

// DefaultKey names the blob.
const DefaultKey = "antron_v13_sessions"

// Backend driver names.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store loads and saves the full session list.
type Store interface {
	Load(ctx context.Context) ([]types.ChatSession, error)
	Save(ctx context.Context, sessions []types.ChatSession) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string
	// DSN is a directory for file, a path or DSN for sqlite, and a
	// connection URL for postgres.
	DSN string
	Key string
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = DefaultKey
	}
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverFile:
		s, err = NewFileStore(cfg.DSN, cfg.Key)
	case DriverSQLite:
		s, err = OpenSQLite(ctx, cfg.DSN, cfg.Key)
	case DriverPostgres:
		s, err = OpenPostgres(ctx, cfg.DSN, cfg.Key)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func encode(sessions []types.ChatSession) ([]byte, error) {
	if sessions == nil {
		sessions = []types.ChatSession{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("encode sessions: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]types.ChatSession, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return []types.ChatSession{}, nil
	}
	var sessions []types.ChatSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	if sessions == nil {
		sessions = []types.ChatSession{}
	}
	return sessions, nil
}
