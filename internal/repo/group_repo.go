package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pager/server/internal/model"
)

// GroupRepo defines the interface for group repository operations
type GroupRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Group, error)
	GetByName(ctx context.Context, name string) (model.Group, error)
	GrantChat(ctx context.Context, groupID, chatID uuid.UUID) error
	RevokeChat(ctx context.Context, groupID, chatID uuid.UUID) error
}

type groupRepo struct {
	db *sql.DB
}

// NewGroupRepo creates a new GroupRepo instance
func NewGroupRepo(db *sql.DB) GroupRepo {
	return &groupRepo{db: db}
}

// GetByID retrieves a group and its chat-access list by ID
func (r *groupRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Group, error) {
	query := `SELECT id, name, city FROM groups WHERE id = $1`
	return r.getGroup(ctx, query, id)
}

// GetByName retrieves a group and its chat-access list by name
func (r *groupRepo) GetByName(ctx context.Context, name string) (model.Group, error) {
	query := `SELECT id, name, city FROM groups WHERE name = $1`
	return r.getGroup(ctx, query, name)
}

func (r *groupRepo) getGroup(ctx context.Context, query string, arg any) (model.Group, error) {
	var group model.Group
	var idStr string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&idStr, &group.Name, &group.City)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Group{}, fmt.Errorf("group not found: %w", ErrNotFound)
		}
		return model.Group{}, fmt.Errorf("failed to query group: %w", err)
	}
	if group.ID, err = uuid.Parse(idStr); err != nil {
		return model.Group{}, fmt.Errorf("failed to parse group ID: %w", err)
	}

	chats, err := r.chatAccessList(ctx, group.ID)
	if err != nil {
		return model.Group{}, err
	}
	group.Chats = chats
	return group, nil
}

func (r *groupRepo) chatAccessList(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT chat_id FROM group_chats WHERE group_id = $1`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat access list: %w", err)
	}
	defer rows.Close()

	var chats []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("failed to scan chat ID: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse chat ID: %w", err)
		}
		chats = append(chats, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat access list: %w", err)
	}
	return chats, nil
}

// GrantChat adds a chat to the group's access list; granting an already
// granted chat is a no-op
func (r *groupRepo) GrantChat(ctx context.Context, groupID, chatID uuid.UUID) error {
	query := `
		INSERT INTO group_chats (group_id, chat_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, chat_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, groupID, chatID); err != nil {
		return fmt.Errorf("failed to grant chat access: %w", err)
	}
	return nil
}

// RevokeChat removes a chat from the group's access list
func (r *groupRepo) RevokeChat(ctx context.Context, groupID, chatID uuid.UUID) error {
	query := `DELETE FROM group_chats WHERE group_id = $1 AND chat_id = $2`
	if _, err := r.db.ExecContext(ctx, query, groupID, chatID); err != nil {
		return fmt.Errorf("failed to revoke chat access: %w", err)
	}
	return nil
}
