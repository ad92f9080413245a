package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore is a Store backed by SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenSQLite opens (or creates) a SQLite database at path and runs migrations.
// Use ":memory:" for an in-memory database.
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log.Named("store")}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info("database opened", zap.String("path", path))
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.log.Info("closing database")
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		s.log.Info("applying migration", zap.Int("version", m.Version), zap.String("name", m.Name))

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

const channelColumns = `id, tenant_id, agent_id, type, webhook_secret, status, credentials, metadata, created_at, updated_at`

// FilterChannels returns channels matching f, oldest first.
func (s *SQLiteStore) FilterChannels(ctx context.Context, f ChannelFilter) ([]model.Channel, error) {
	var (
		where []string
		args  []any
	)
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}

	query := "SELECT " + channelColumns + " FROM channels" + whereClause(where) + " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

// GetChannel returns a channel by ID.
func (s *SQLiteStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = ?", id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ch, err
}

// CreateChannel inserts ch, assigning its ID and timestamps.
func (s *SQLiteStore) CreateChannel(ctx context.Context, ch *model.Channel) error {
	now := time.Now().UTC()
	if ch.ID == "" {
		ch.ID = uuid.Must(uuid.NewV7()).String()
	}
	ch.CreatedAt = now
	ch.UpdatedAt = now

	creds, err := encodeMap(ch.Credentials)
	if err != nil {
		return err
	}
	meta, err := encodeMap(ch.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO channels ("+channelColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		ch.ID, ch.TenantID, ch.AgentID, string(ch.Type), ch.WebhookSecret, string(ch.Status),
		creds, meta, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting channel: %w", err)
	}
	return nil
}

// UpdateChannel replaces status, credentials and metadata of an existing channel.
func (s *SQLiteStore) UpdateChannel(ctx context.Context, ch *model.Channel) error {
	now := time.Now().UTC()

	creds, err := encodeMap(ch.Credentials)
	if err != nil {
		return err
	}
	meta, err := encodeMap(ch.Metadata)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE channels SET status = ?, credentials = ?, metadata = ?, updated_at = ? WHERE id = ?",
		string(ch.Status), creds, meta, now.Format(timeLayout), ch.ID,
	)
	if err != nil {
		return fmt.Errorf("updating channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	ch.UpdatedAt = now
	return nil
}

// DeleteChannel removes a channel.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const conversationColumns = `id, tenant_id, agent_id, channel, customer_phone, customer_name, messages, status, version, created_at, updated_at`

// FilterConversations returns conversations matching f, newest first.
func (s *SQLiteStore) FilterConversations(ctx context.Context, f ConversationFilter) ([]model.Conversation, error) {
	var (
		where []string
		args  []any
	)
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.CustomerPhone != "" {
		where = append(where, "customer_phone = ?")
		args = append(args, f.CustomerPhone)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := "SELECT " + conversationColumns + " FROM conversations" + whereClause(where) + " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

// GetConversation returns a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

// CreateConversation inserts conv, assigning its ID, version and timestamps.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = uuid.Must(uuid.NewV7()).String()
	}
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	conv.Version = 1
	conv.CreatedAt = now
	conv.UpdatedAt = now

	msgs, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO conversations ("+conversationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		conv.ID, conv.TenantID, conv.AgentID, string(conv.Channel), conv.CustomerPhone, conv.CustomerName,
		string(msgs), string(conv.Status), conv.Version, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// UpdateConversation applies upd with a compare-and-swap on the version column.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate, expectedVersion int) (*model.Conversation, error) {
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{time.Now().UTC().Format(timeLayout)}

	if upd.Messages != nil {
		msgs, err := json.Marshal(upd.Messages)
		if err != nil {
			return nil, fmt.Errorf("encoding messages: %w", err)
		}
		sets = append(sets, "messages = ?")
		args = append(args, string(msgs))
	}
	if upd.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(upd.Status))
	}

	query := "UPDATE conversations SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if expectedVersion > 0 {
		query += " AND version = ?"
		args = append(args, expectedVersion)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetConversation(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}

	return s.GetConversation(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*model.Channel, error) {
	var (
		ch                   model.Channel
		typ, status          string
		creds, meta          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&ch.ID, &ch.TenantID, &ch.AgentID, &typ, &ch.WebhookSecret, &status,
		&creds, &meta, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning channel: %w", err)
	}

	ch.Type = model.ChannelType(typ)
	ch.Status = model.ChannelStatus(status)

	var err error
	if ch.Credentials, err = decodeMap(creds); err != nil {
		return nil, err
	}
	if ch.Metadata, err = decodeMap(meta); err != nil {
		return nil, err
	}
	ch.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	ch.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &ch, nil
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var (
		conv                 model.Conversation
		channel, status      string
		msgs                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&conv.ID, &conv.TenantID, &conv.AgentID, &channel, &conv.CustomerPhone,
		&conv.CustomerName, &msgs, &status, &conv.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.Channel = model.ChannelType(channel)
	conv.Status = model.ConversationStatus(status)
	if err := json.Unmarshal([]byte(msgs), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	conv.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	conv.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &conv, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func encodeMap(m map[string]string) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding map: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMap(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("decoding map: %w", err)
	}
	return m, nil
}
