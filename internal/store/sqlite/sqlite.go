package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shelfx/shelfx-chat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema against ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== Marketplace requests ====

// UpsertRequest records a buyer's request for a book. The marketplace owns this table;
// the chat core only reads it.
func (s *SQLiteStore) UpsertRequest(ctx context.Context, bookID, buyerID, sellerID string, status store.RequestStatus) error {
	query := `
		INSERT INTO book_requests (book_id, buyer_id, seller_id, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (book_id, buyer_id, seller_id) DO UPDATE SET status = excluded.status
	`
	if _, err := s.db.ExecContext(ctx, query, bookID, buyerID, sellerID, string(status)); err != nil {
		return fmt.Errorf("upsert request: %w", err)
	}
	return nil
}

// ==== ConversationStore implementation ====

// AuthorizeConversation resolves the canonical conversation between requester and counterparty.
func (s *SQLiteStore) AuthorizeConversation(ctx context.Context, bookID, requesterID, counterpartyID string) (*store.Conversation, error) {
	if requesterID == "" || counterpartyID == "" || requesterID == counterpartyID {
		return nil, store.ErrNotFound
	}

	query := `
		SELECT buyer_id, seller_id
		FROM book_requests
		WHERE book_id = ?
		  AND ((buyer_id = ? AND seller_id = ?) OR (buyer_id = ? AND seller_id = ?))
		  AND status != ?
		LIMIT 1
	`
	var buyerID, sellerID string
	err := s.db.QueryRowContext(ctx, query,
		bookID, requesterID, counterpartyID, counterpartyID, requesterID, string(store.RequestStatusRejected),
	).Scan(&buyerID, &sellerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("request relationship: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query request: %w", err)
	}

	insert := `
		INSERT OR IGNORE INTO conversations (id, book_id, buyer_id, seller_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, insert, uuid.NewString(), bookID, buyerID, sellerID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, book_id, buyer_id, seller_id, created_at
		FROM conversations
		WHERE book_id = ? AND buyer_id = ? AND seller_id = ?
	`, bookID, buyerID, sellerID))
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, book_id, buyer_id, seller_id, created_at
		FROM conversations
		WHERE id = ?
	`, id))
}

// ListConversations lists the conversations the user takes part in, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT id, book_id, buyer_id, seller_id, created_at
		FROM conversations
		WHERE buyer_id = ? OR seller_id = ?
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*store.Conversation
	for rows.Next() {
		var c store.Conversation
		if err := rows.Scan(&c.ID, &c.BookID, &c.BuyerID, &c.SellerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, &c)
	}

	return convs, rows.Err()
}

func (s *SQLiteStore) scanConversation(row *sql.Row) (*store.Conversation, error) {
	var c store.Conversation
	if err := row.Scan(&c.ID, &c.BookID, &c.BuyerID, &c.SellerID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return &c, nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message and assigns its ID and SentAt.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (conversation_id, sender_id, body, sent_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ConversationID, msg.SenderID, msg.Body, msg.SentAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// MarkDelivered stamps delivered_at once.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, messageID int64, at time.Time) error {
	query := `UPDATE messages SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, at, messageID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkConversationRead stamps read_at on the counterparty's unread messages.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	query := `
		UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND sender_id != ? AND read_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// UnreadMessagesFor lists unread messages addressed to userID together with the
// store's high-water message ID, both read from one snapshot.
func (s *SQLiteStore) UnreadMessagesFor(ctx context.Context, userID string) ([]*store.Message, int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin unread tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var highWater int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&highWater); err != nil {
		return nil, 0, fmt.Errorf("query high-water id: %w", err)
	}

	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.body, m.sent_at, m.delivered_at, m.read_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.buyer_id = ? OR c.seller_id = ?)
		  AND m.sender_id != ?
		  AND m.read_at IS NULL
		  AND m.id <= ?
		ORDER BY m.id ASC
	`
	rows, err := tx.QueryContext(ctx, query, userID, userID, userID, highWater)
	if err != nil {
		return nil, 0, fmt.Errorf("query unread messages: %w", err)
	}
	defer rows.Close()

	unread, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return unread, highWater, nil
}

// ListMessages retrieves messages from a conversation with pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT id, conversation_id, sender_id, body, sent_at, delivered_at, read_at
			FROM messages
			WHERE conversation_id = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{conversationID, *beforeID, limit}
	} else {
		query = `
			SELECT id, conversation_id, sender_id, body, sent_at, delivered_at, read_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{conversationID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]*store.Message, error) {
	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var deliveredAt, readAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.SentAt, &deliveredAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if deliveredAt.Valid {
			msg.DeliveredAt = &deliveredAt.Time
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
