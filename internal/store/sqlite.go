package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/domain"
)

// SQLite is a single-file durable store.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database file and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers anyway; one connection keeps appends ordered.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("module", "store.sqlite").Str("path", path).Msg("sqlite store ready")
	return s, nil
}

// migrate is idempotent.
func (s *SQLite) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  room_id TEXT NOT NULL,
  payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages (room_id, id);

CREATE TABLE IF NOT EXISTS room_options (
  room_id TEXT PRIMARY KEY,
  visibility TEXT NOT NULL,
  max_connections_per_ip INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ip_users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  room_id TEXT NOT NULL,
  addr TEXT NOT NULL,
  identity TEXT NOT NULL,
  expires_at INTEGER NOT NULL -- unix micro
);
CREATE INDEX IF NOT EXISTS idx_ip_users ON ip_users (room_id, addr);

CREATE TABLE IF NOT EXISTS public_keys (
  identity TEXT PRIMARY KEY,
  public_key TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

func (s *SQLite) AppendMessage(ctx context.Context, room domain.RoomID, msg domain.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, payload) VALUES (?, ?)`, string(room), payload); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *SQLite) History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM messages WHERE room_id = ? ORDER BY id ASC`, string(room))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		var msg domain.ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn().Err(err).Str("module", "store.sqlite").Str("room", string(room)).Msg("skipping undecodable log entry")
			continue
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveRoomOptions(ctx context.Context, opts domain.RoomOptions) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO room_options (room_id, visibility, max_connections_per_ip) VALUES (?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET visibility = excluded.visibility,
  max_connections_per_ip = excluded.max_connections_per_ip`,
		string(opts.RoomID), string(opts.Visibility), opts.MaxConnectionsPerIP)
	if err != nil {
		return fmt.Errorf("save room options: %w", err)
	}
	return nil
}

func (s *SQLite) LoadRoomOptions(ctx context.Context, room domain.RoomID) (domain.RoomOptions, error) {
	var vis string
	var ceiling int
	err := s.db.QueryRowContext(ctx,
		`SELECT visibility, max_connections_per_ip FROM room_options WHERE room_id = ?`, string(room)).
		Scan(&vis, &ceiling)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RoomOptions{}, ErrNotFound
	}
	if err != nil {
		return domain.RoomOptions{}, fmt.Errorf("load room options: %w", err)
	}
	return domain.RoomOptions{RoomID: room, Visibility: domain.Visibility(vis), MaxConnectionsPerIP: ceiling}, nil
}

func (s *SQLite) AddAddressMember(ctx context.Context, room domain.RoomID, addr string, id domain.Identity, ttl time.Duration) error {
	expires := s.now().Add(ttl).UnixMicro()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ip_users WHERE room_id = ? AND addr = ? AND expires_at <= ?`,
		string(room), addr, s.now().UnixMicro()); err != nil {
		return fmt.Errorf("expire address members: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ip_users (room_id, addr, identity, expires_at) VALUES (?, ?, ?, ?)`,
		string(room), addr, string(id), expires); err != nil {
		return fmt.Errorf("add address member: %w", err)
	}
	// the whole list shares one expiry, like a keyed list with EXPIRE
	if _, err := tx.ExecContext(ctx,
		`UPDATE ip_users SET expires_at = ? WHERE room_id = ? AND addr = ?`,
		expires, string(room), addr); err != nil {
		return fmt.Errorf("refresh address expiry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) RemoveAddressMember(ctx context.Context, room domain.RoomID, addr string, id domain.Identity) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM ip_users WHERE id = (
  SELECT id FROM ip_users WHERE room_id = ? AND addr = ? AND identity = ? ORDER BY id LIMIT 1
)`, string(room), addr, string(id))
	if err != nil {
		return fmt.Errorf("remove address member: %w", err)
	}
	return nil
}

func (s *SQLite) AddressMembers(ctx context.Context, room domain.RoomID, addr string) ([]domain.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity FROM ip_users WHERE room_id = ? AND addr = ? AND expires_at > ? ORDER BY id`,
		string(room), addr, s.now().UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("query address members: %w", err)
	}
	defer rows.Close()
	var out []domain.Identity
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan address member: %w", err)
		}
		out = append(out, domain.Identity(id))
	}
	return out, rows.Err()
}

func (s *SQLite) SavePublicKey(ctx context.Context, id domain.Identity, key string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO public_keys (identity, public_key, updated_at) VALUES (?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET public_key = excluded.public_key, updated_at = excluded.updated_at`,
		string(id), key, s.now().UnixMicro())
	if err != nil {
		return fmt.Errorf("save public key: %w", err)
	}
	return nil
}

func (s *SQLite) PublicKey(ctx context.Context, id domain.Identity) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT public_key FROM public_keys WHERE identity = ?`, string(id)).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load public key: %w", err)
	}
	return key, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
