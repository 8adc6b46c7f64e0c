package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/vango-go/antron/pkg/core/types"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

type dialect struct {
	goose  goose.Dialect
	dir    string
	load   string
	upsert string
}

var (
	postgresDialect = dialect{
		goose:  goose.DialectPostgres,
		dir:    "migrations/postgres",
		load:   `SELECT value FROM kv_blobs WHERE key = $1`,
		upsert: `INSERT INTO kv_blobs (key, value, updated_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	}
	sqliteDialect = dialect{
		goose:  goose.DialectSQLite3,
		dir:    "migrations/sqlite",
		load:   `SELECT value FROM kv_blobs WHERE key = ?`,
		upsert: `INSERT INTO kv_blobs (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	}
)

// SQLStore keeps the blob as one row of kv_blobs.
type SQLStore struct {
	db      *sql.DB
	key     string
	dialect dialect
	now     func() time.Time
	closeFn func() error
}

// OpenSQLite opens (creating if needed) a sqlite database at dsn and
// applies migrations.
func OpenSQLite(ctx context.Context, dsn, key string) (*SQLStore, error) {
	if dsn == "" {
		dsn = "antron.sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps writes serialized and :memory: coherent.
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, sqliteDialect, key, db.Close)
}

// OpenPostgres connects through a pgx pool and applies migrations.
func OpenPostgres(ctx context.Context, databaseURL, key string) (*SQLStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	config.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	closeFn := func() error {
		err := db.Close()
		pool.Close()
		return err
	}
	return newSQLStore(ctx, db, postgresDialect, key, closeFn)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, key string, closeFn func() error) (*SQLStore, error) {
	if key == "" {
		key = DefaultKey
	}
	if err := db.PingContext(ctx); err != nil {
		closeFn()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db, d); err != nil {
		closeFn()
		return nil, err
	}
	return &SQLStore{db: db, key: key, dialect: d, now: time.Now, closeFn: closeFn}, nil
}

func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	fsys, err := fs.Sub(migrations, d.dir)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	provider, err := goose.NewProvider(d.goose, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Load returns an empty list when no row exists for the key.
func (s *SQLStore) Load(ctx context.Context) ([]types.ChatSession, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.load, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []types.ChatSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return decode([]byte(value))
}

// Save upserts the row for the key.
func (s *SQLStore) Save(ctx context.Context, sessions []types.ChatSession) error {
	data, err := encode(sessions)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, s.key, string(data), s.now().UnixMilli()); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.closeFn()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
