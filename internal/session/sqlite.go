package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite" // SQLite driver

	"davinci-agent/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore 基于 SQLite 的持久化存储，进程重启后会话可继续
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedMutex
}

// OpenSQLite 打开（或创建）数据库并执行未应用的迁移
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// 单连接：:memory: 数据库按连接隔离，且写入无需竞争
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, locks: newKeyedMutex()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close 关闭数据库连接
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		parts := strings.SplitN(name, "_", 2)
		if e.IsDir() || !strings.HasSuffix(name, ".sql") || len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil || version <= current {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version, strings.TrimSuffix(parts[1], ".sql"),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		slog.Debug("applied migration", "version", version, "file", name)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (State, error) {
	st := State{PendingData: map[string]string{}}
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT pending_intent, pending_data FROM sessions WHERE id = ?", id,
	).Scan(&st.PendingIntent, &data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return State{}, fmt.Errorf("get session %s: %w", id, err)
	default:
		if err := sonic.UnmarshalString(data, &st.PendingData); err != nil {
			return State{}, fmt.Errorf("decode session %s: %w", id, err)
		}
		if st.PendingData == nil {
			st.PendingData = map[string]string{}
		}
	}
	st.Locked = s.locks.held(id)
	return st, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id string, st State) error {
	if st.Idle() && len(st.PendingData) == 0 {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			return fmt.Errorf("clear session %s: %w", id, err)
		}
		return nil
	}
	data := st.PendingData
	if data == nil {
		data = map[string]string{}
	}
	raw, err := sonic.MarshalString(data)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, pending_intent, pending_data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			pending_intent = excluded.pending_intent,
			pending_data   = excluded.pending_data,
			updated_at     = CURRENT_TIMESTAMP`,
		id, st.PendingIntent, raw)
	if err != nil {
		return fmt.Errorf("put session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Lock(ctx context.Context, id string) (func(), error) {
	return s.locks.lock(ctx, id)
}

func (s *SQLiteStore) Append(ctx context.Context, id string, msg model.TranscriptMessage) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, sender, content, slot_delta, created_at) VALUES (?, ?, ?, ?, ?)",
		id, msg.Sender, msg.Content, msg.SlotDelta, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, id string) ([]model.TranscriptMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT sender, content, slot_delta, created_at FROM messages WHERE session_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", id, err)
	}
	defer rows.Close()

	out := []model.TranscriptMessage{}
	for rows.Next() {
		var m model.TranscriptMessage
		if err := rows.Scan(&m.Sender, &m.Content, &m.SlotDelta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveToken(ctx context.Context, id, provider string, token []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (session_id, provider, token, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id, provider) DO UPDATE SET
			token      = excluded.token,
			updated_at = CURRENT_TIMESTAMP`,
		id, provider, string(token))
	if err != nil {
		return fmt.Errorf("save token %s/%s: %w", id, provider, err)
	}
	return nil
}

func (s *SQLiteStore) LoadToken(ctx context.Context, id, provider string) ([]byte, error) {
	var tok string
	err := s.db.QueryRowContext(ctx,
		"SELECT token FROM oauth_tokens WHERE session_id = ? AND provider = ?", id, provider,
	).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load token %s/%s: %w", id, provider, err)
	}
	return []byte(tok), nil
}
