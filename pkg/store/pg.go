package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// notifyChannel is the LISTEN/NOTIFY channel carrying written keys
const notifyChannel = "relay_items"

// PGStore is a relay store persisted in PostgreSQL
type PGStore struct {
	pool   *pgxpool.Pool
	stamps *stamper
	table  string
}

// PGConfig configures a PGStore
type PGConfig struct {
	DatabaseURL string
	Table       string // defaults to relay_items
	MaxConns    int32
}

// NewPGStore connects, verifies connectivity, and migrates the relay table
func NewPGStore(ctx context.Context, cfg PGConfig) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Watchers hold one connection each, keep headroom for writes
	config.MaxConns = 10
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "relay_items"
	}
	s := &PGStore{pool: pool, stamps: newStamper(time.Now), table: table}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if err := s.loadLastStamp(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	ident := pgx.Identifier{s.table}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + ident + ` (
			relay_id    TEXT PRIMARY KEY,
			relay_time  BIGINT NOT NULL,
			relay_stamp BIGINT NOT NULL,
			details     BYTEA
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{s.table + "_stamp_idx"}.Sanitize() +
			` ON ` + ident + ` (relay_stamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// loadLastStamp makes stamps survive restarts so fetch windows stay monotonic
func (s *PGStore) loadLastStamp(ctx context.Context) error {
	var last *int64
	query := `SELECT MAX(relay_stamp) FROM ` + pgx.Identifier{s.table}.Sanitize()
	if err := s.pool.QueryRow(ctx, query).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last stamp: %w", err)
	}
	if last != nil {
		s.stamps.observe(*last)
	}
	return nil
}

// Submit implements Store
func (s *PGStore) Submit(ctx context.Context, key string, timestamp int64, payload []byte, force bool) (*relayitem.Item, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	ident := pgx.Identifier{s.table}.Sanitize()
	query := `
		INSERT INTO ` + ident + ` AS t (relay_id, relay_time, relay_stamp, details)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (relay_id) DO UPDATE
		SET relay_time = EXCLUDED.relay_time,
		    relay_stamp = EXCLUDED.relay_stamp,
		    details = EXCLUDED.details`
	if !force {
		query += `
		WHERE t.relay_time < EXCLUDED.relay_time`
	}
	query += `
		RETURNING relay_id, relay_time, relay_stamp, details`

	it := &relayitem.Item{}
	err := s.pool.QueryRow(ctx, query, key, timestamp, s.stamps.next(), payload).
		Scan(&it.Key, &it.Timestamp, &it.Stamp, &it.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit relay item %s: %w", key, err)
	}

	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, key); err != nil {
		return it, fmt.Errorf("failed to notify relay item %s: %w", key, err)
	}
	return it, nil
}

// Get implements Reader
func (s *PGStore) Get(ctx context.Context, key string) (*relayitem.Item, error) {
	query := `
		SELECT relay_id, relay_time, relay_stamp, details
		FROM ` + pgx.Identifier{s.table}.Sanitize() + `
		WHERE relay_id = $1`

	it := &relayitem.Item{}
	err := s.pool.QueryRow(ctx, query, key).Scan(&it.Key, &it.Timestamp, &it.Stamp, &it.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relay item %s: %w", key, err)
	}
	return it, nil
}

// Query implements Reader
func (s *PGStore) Query(ctx context.Context, q Query) ([]relayitem.Item, error) {
	query := `
		SELECT relay_id, relay_time, relay_stamp, details
		FROM ` + pgx.Identifier{s.table}.Sanitize() + `
		WHERE relay_stamp BETWEEN $1 AND $2
		ORDER BY relay_stamp`

	rows, err := s.pool.Query(ctx, query, q.StampLo, q.StampHi)
	if err != nil {
		return nil, fmt.Errorf("failed to query relay items: %w", err)
	}
	defer rows.Close()

	out := make([]relayitem.Item, 0)
	for rows.Next() {
		var it relayitem.Item
		if err := rows.Scan(&it.Key, &it.Timestamp, &it.Stamp, &it.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan relay item: %w", err)
		}
		if q.Matches(&it) {
			out = append(out, it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relay items: %w", err)
	}
	return out, nil
}

// Watch implements Reader. It holds one pooled connection for the life of ctx.
func (s *PGStore) Watch(ctx context.Context) (<-chan relayitem.Item, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire watch connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen for relay items: %w", err)
	}

	ch := make(chan relayitem.Item, feedBufferSize)
	go func() {
		defer close(ch)
		defer func() {
			unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// Returned to the pool, so it must not keep receiving notifications
			_, _ = conn.Exec(unlistenCtx, "UNLISTEN *")
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				// ctx ended or the connection broke; either way the stream is over
				return
			}
			it, err := s.Get(ctx, n.Payload)
			if err != nil || it == nil {
				continue
			}
			select {
			case ch <- *it:
			default:
			}
		}
	}()

	return ch, nil
}

// Ping implements Store
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PGStore)(nil)
