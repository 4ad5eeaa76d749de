package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pager/server/internal/model"
)

// ChatRepo defines the interface for chat repository operations
type ChatRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Chat, error)
	Create(ctx context.Context, title string) (model.Chat, error)
	// AppendMessage inserts one message row. Each message is its own row,
	// so concurrent sends to the same chat never clobber each other.
	AppendMessage(ctx context.Context, msg model.Message) error
	// LastMessages returns up to n of the chat's most recent messages,
	// newest first.
	LastMessages(ctx context.Context, chatID uuid.UUID, n int) ([]model.Message, error)
	CountMessages(ctx context.Context, chatID uuid.UUID) (int, error)
}

type chatRepo struct {
	db *sql.DB
}

// NewChatRepo creates a new ChatRepo instance
func NewChatRepo(db *sql.DB) ChatRepo {
	return &chatRepo{db: db}
}

// GetByID retrieves a chat by ID
func (r *chatRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Chat, error) {
	query := `SELECT id, title FROM chats WHERE id = $1`

	var chat model.Chat
	var idStr string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&idStr, &chat.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Chat{}, fmt.Errorf("chat not found: %w", ErrNotFound)
		}
		return model.Chat{}, fmt.Errorf("failed to query chat: %w", err)
	}
	if chat.ID, err = uuid.Parse(idStr); err != nil {
		return model.Chat{}, fmt.Errorf("failed to parse chat ID: %w", err)
	}
	return chat, nil
}

// Create creates a new empty chat
func (r *chatRepo) Create(ctx context.Context, title string) (model.Chat, error) {
	query := `INSERT INTO chats (title) VALUES ($1) RETURNING id`

	var idStr string
	if err := r.db.QueryRowContext(ctx, query, title).Scan(&idStr); err != nil {
		return model.Chat{}, fmt.Errorf("failed to create chat: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Chat{}, fmt.Errorf("failed to parse chat ID: %w", err)
	}
	return model.Chat{ID: id, Title: title}, nil
}

// AppendMessage inserts one message row at the tail of the chat's log
func (r *chatRepo) AppendMessage(ctx context.Context, msg model.Message) error {
	query := `
		INSERT INTO messages (id, chat_id, text, image_id, ts, sender_id, nickname)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.ChatID, msg.Text, msg.ImageID, msg.Timestamp, msg.SenderID, msg.Nickname)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// LastMessages returns up to n most recent messages of the chat, newest first
func (r *chatRepo) LastMessages(ctx context.Context, chatID uuid.UUID, n int) ([]model.Message, error) {
	query := `
		SELECT id, chat_id, text, image_id, ts, sender_id, nickname
		FROM messages
		WHERE chat_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, chatID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		var chatStr, senderStr string
		var imageStr *string
		err := rows.Scan(&msg.ID, &chatStr, &msg.Text, &imageStr, &msg.Timestamp, &senderStr, &msg.Nickname)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.ChatID, err = uuid.Parse(chatStr); err != nil {
			return nil, fmt.Errorf("failed to parse chat ID: %w", err)
		}
		if msg.SenderID, err = uuid.Parse(senderStr); err != nil {
			return nil, fmt.Errorf("failed to parse sender ID: %w", err)
		}
		if imageStr != nil {
			imageID, err := uuid.Parse(*imageStr)
			if err != nil {
				return nil, fmt.Errorf("failed to parse image ID: %w", err)
			}
			msg.ImageID = &imageID
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

// CountMessages returns the number of messages persisted in the chat
func (r *chatRepo) CountMessages(ctx context.Context, chatID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE chat_id = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, chatID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
