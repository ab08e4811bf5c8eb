// Package db provides SQLite storage for orai message metadata.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB wraps a SQLite connection for orai operations.
type DB struct {
	conn *sqlx.DB
	path string
	now  func() time.Time
}

// Open opens (or creates) an orai database at the given path and applies
// the schema.
func Open(dbPath string) (*DB, error) {
	dsn := MemoryPath
	if dbPath != MemoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	}

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database lives on a single connection.
	conn.SetMaxOpenConns(1)

	d := &DB{conn: conn, path: dbPath, now: time.Now}
	if err := d.Migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// Migrate applies the schema. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if d.path == MemoryPath {
		if _, err := d.conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	if _, err := d.conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// GenID generates a new record id.
func GenID() string {
	return uuid.NewString()
}

func (d *DB) stamp() string {
	return d.now().UTC().Format(time.RFC3339Nano)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrStorage, op, err)
}

// --- User operations ---

// UpsertUser creates the user or refreshes its email.
func (d *DB) UpsertUser(ctx context.Context, u types.User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", types.ErrValidation)
	}
	now := d.stamp()
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, updated_at = excluded.updated_at`,
		u.ID, u.Email, now, now,
	)
	if err != nil {
		return storageErr("upsert user", err)
	}
	return nil
}

// GetUser returns a user by id.
func (d *DB) GetUser(ctx context.Context, id string) (*types.User, error) {
	var row struct {
		ID        string `db:"id"`
		Email     string `db:"email"`
		CreatedAt string `db:"created_at"`
		UpdatedAt string `db:"updated_at"`
	}
	err := d.conn.GetContext(ctx, &row, "SELECT id, email, created_at, updated_at FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return &types.User{
		ID:        row.ID,
		Email:     row.Email,
		CreatedAt: parseTime(row.CreatedAt),
		UpdatedAt: parseTime(row.UpdatedAt),
	}, nil
}

// --- Message operations ---

// messageRow is the column layout of the messages table.
type messageRow struct {
	ID                string `db:"id"`
	OwnerID           string `db:"owner_id"`
	ProviderMessageID string `db:"provider_message_id"`
	ProviderThreadID  string `db:"provider_thread_id"`
	Subject           string `db:"subject"`
	Snippet           string `db:"snippet"`
	SenderName        string `db:"sender_name"`
	SenderAddress     string `db:"sender_address"`
	BodyRef           string `db:"body_ref"`
	IsRead            bool   `db:"is_read"`
	IsArchived        bool   `db:"is_archived"`
	IsSpam            bool   `db:"is_spam"`
	Labels            string `db:"labels"`
	ReceivedAt        int64  `db:"received_at"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

const messageColumns = `id, owner_id, provider_message_id, provider_thread_id, subject, snippet,
	sender_name, sender_address, body_ref, is_read, is_archived, is_spam, labels,
	received_at, created_at, updated_at`

func (r messageRow) toMessage() *types.Message {
	return &types.Message{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		ProviderMessageID: r.ProviderMessageID,
		ProviderThreadID:  r.ProviderThreadID,
		Subject:           r.Subject,
		Snippet:           r.Snippet,
		Sender:            types.Sender{Name: r.SenderName, Address: r.SenderAddress},
		BodyRef:           r.BodyRef,
		IsRead:            r.IsRead,
		IsArchived:        r.IsArchived,
		IsSpam:            r.IsSpam,
		Labels:            splitLabels(r.Labels),
		ReceivedAt:        time.UnixMilli(r.ReceivedAt).UTC(),
		CreatedAt:         parseTime(r.CreatedAt),
		UpdatedAt:         parseTime(r.UpdatedAt),
	}
}

// UpsertMessage inserts m or, when (owner, provider message id) already
// exists, refreshes labels and the flags derived from them (is_read,
// is_archived, is_spam). Identity fields and the body reference are written
// on creation only. It reports whether a new row
// was created and sets m.ID to the stored id.
func (d *DB) UpsertMessage(ctx context.Context, m *types.Message) (bool, error) {
	if m.OwnerID == "" || m.ProviderMessageID == "" {
		return false, fmt.Errorf("%w: owner and provider message id are required", types.ErrValidation)
	}
	newID := GenID()
	now := d.stamp()

	var storedID string
	err := d.conn.QueryRowxContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, provider_message_id) DO UPDATE SET
			is_read = excluded.is_read,
			is_archived = excluded.is_archived,
			is_spam = excluded.is_spam,
			labels = excluded.labels,
			updated_at = excluded.updated_at
		RETURNING id`,
		newID, m.OwnerID, m.ProviderMessageID, m.ProviderThreadID, m.Subject, m.Snippet,
		m.Sender.Name, m.Sender.Address, m.BodyRef, m.IsRead, m.IsArchived, m.IsSpam,
		joinLabels(m.Labels), m.ReceivedAt.UnixMilli(), now, now,
	).Scan(&storedID)
	if err != nil {
		return false, storageErr("upsert message", err)
	}
	m.ID = storedID
	return storedID == newID, nil
}

// MessageByProviderID looks up a message by its provider id within one
// owner's cache.
func (d *DB) MessageByProviderID(ctx context.Context, ownerID, providerMessageID string) (*types.Message, error) {
	var row messageRow
	err := d.conn.GetContext(ctx, &row,
		"SELECT "+messageColumns+" FROM messages WHERE owner_id = ? AND provider_message_id = ?",
		ownerID, providerMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", providerMessageID, types.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get message", err)
	}
	return row.toMessage(), nil
}

// GetMessage returns a message by id, only if it belongs to ownerID.
func (d *DB) GetMessage(ctx context.Context, ownerID, id string) (*types.Message, error) {
	var row messageRow
	err := d.conn.GetContext(ctx, &row,
		"SELECT "+messageColumns+" FROM messages WHERE id = ? AND owner_id = ?", id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get message", err)
	}
	return row.toMessage(), nil
}

// Views select a subset of an owner's cache.
const (
	ViewAll      = "all"
	ViewInbox    = "inbox"
	ViewArchived = "archived"
	ViewSpam     = "spam"
)

// Listing limits.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ListFilter narrows ListMessages.
type ListFilter struct {
	View  string
	Limit int
}

// ListMessages returns an owner's messages, most recently received first.
func (d *DB) ListMessages(ctx context.Context, ownerID string, f ListFilter) ([]*types.Message, error) {
	where := []string{"owner_id = ?"}
	switch f.View {
	case "", ViewAll:
	case ViewInbox:
		where = append(where, "is_archived = 0", "is_spam = 0")
	case ViewArchived:
		where = append(where, "is_archived = 1", "is_spam = 0")
	case ViewSpam:
		where = append(where, "is_spam = 1")
	default:
		return nil, fmt.Errorf("%w: unknown view %q", types.ErrValidation, f.View)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var rows []messageRow
	query := "SELECT " + messageColumns + " FROM messages WHERE " + strings.Join(where, " AND ") +
		" ORDER BY received_at DESC, id LIMIT ?"
	if err := d.conn.SelectContext(ctx, &rows, query, ownerID, limit); err != nil {
		return nil, storageErr("list messages", err)
	}
	out := make([]*types.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMessage())
	}
	return out, nil
}

// SetArchived marks a message archived and stores its new labels.
func (d *DB) SetArchived(ctx context.Context, ownerID, id string, labels []string) error {
	return d.updateFlags(ctx, "archive", `is_archived = 1`, ownerID, id, labels)
}

// SetSpam marks a message spam (and so archived) and stores its new labels.
func (d *DB) SetSpam(ctx context.Context, ownerID, id string, labels []string) error {
	return d.updateFlags(ctx, "spam", `is_spam = 1, is_archived = 1`, ownerID, id, labels)
}

func (d *DB) updateFlags(ctx context.Context, op, set, ownerID, id string, labels []string) error {
	res, err := d.conn.ExecContext(ctx,
		"UPDATE messages SET "+set+", labels = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		joinLabels(labels), d.stamp(), id, ownerID)
	if err != nil {
		return storageErr(op, err)
	}
	return requireRow(res, id)
}

// DeleteMessage removes a message from an owner's cache.
func (d *DB) DeleteMessage(ctx context.Context, ownerID, id string) error {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM messages WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return storageErr("delete message", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// --- Stats ---

// OwnerCount summarizes one owner's cache.
type OwnerCount struct {
	OwnerID  string `json:"owner_id" db:"owner_id"`
	Email    string `json:"email" db:"email"`
	Total    int    `json:"total" db:"total"`
	Unread   int    `json:"unread" db:"unread"`
	Inbox    int    `json:"inbox" db:"inbox"`
	Spam     int    `json:"spam" db:"spam"`
	LastSync string `json:"last_sync,omitempty" db:"last_sync"`
}

// MessageCounts returns per-owner counts, including owners with no
// messages.
func (d *DB) MessageCounts(ctx context.Context) ([]OwnerCount, error) {
	var out []OwnerCount
	err := d.conn.SelectContext(ctx, &out, `
		SELECT u.id AS owner_id, u.email AS email,
			COUNT(m.id) AS total,
			COALESCE(SUM(CASE WHEN m.is_read = 0 THEN 1 ELSE 0 END), 0) AS unread,
			COALESCE(SUM(CASE WHEN m.is_archived = 0 AND m.is_spam = 0 THEN 1 ELSE 0 END), 0) AS inbox,
			COALESCE(SUM(CASE WHEN m.is_spam = 1 THEN 1 ELSE 0 END), 0) AS spam,
			COALESCE(MAX(m.updated_at), '') AS last_sync
		FROM users u
		LEFT JOIN messages m ON m.owner_id = u.id
		GROUP BY u.id, u.email
		ORDER BY u.email`)
	if err != nil {
		return nil, storageErr("message counts", err)
	}
	return out, nil
}

func joinLabels(labels []string) string {
	return strings.Join(labels, ",")
}

func splitLabels(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
