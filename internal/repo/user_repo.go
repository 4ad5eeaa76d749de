package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pager/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByRSAKey(ctx context.Context, rsaKey string) (model.User, error)
	GetByUID(ctx context.Context, uid string) (model.User, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]model.User, error)
	ListWithChatAccess(ctx context.Context, chatID uuid.UUID) ([]model.User, error)
	Create(ctx context.Context, name, rank string, groupID uuid.UUID, uid string) (model.User, error)
	Activate(ctx context.Context, id uuid.UUID, rsaKey, expoPushToken string) error
	SetLocked(ctx context.Context, id uuid.UUID, locked bool) error
	SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	SetLastLogout(ctx context.Context, id uuid.UUID, at time.Time) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, name, rank, group_id, rsa_key, uid, expo_push_token, activated, locked, last_login, last_logout`

func scanUser(row interface{ Scan(dest ...any) error }) (model.User, error) {
	var user model.User
	var idStr, groupStr string
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Rank,
		&groupStr,
		&user.RSAKey,
		&user.UID,
		&user.ExpoPushToken,
		&user.Activated,
		&user.Locked,
		&user.LastLogin,
		&user.LastLogout,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("user not found: %w", ErrNotFound)
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	if user.ID, err = uuid.Parse(idStr); err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	if user.GroupID, err = uuid.Parse(groupStr); err != nil {
		return model.User{}, fmt.Errorf("failed to parse group ID: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByRSAKey retrieves the user registered to the given public key. Users
// that have not bound a key yet carry an empty rsa_key; the empty string
// must never resolve to them.
func (r *userRepo) GetByRSAKey(ctx context.Context, rsaKey string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE rsa_key = $1 AND rsa_key <> ''`
	return scanUser(r.db.QueryRowContext(ctx, query, rsaKey))
}

// GetByUID retrieves a user by their external identifier
func (r *userRepo) GetByUID(ctx context.Context, uid string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, uid))
}

// ListByGroup retrieves every user belonging to the given group
func (r *userRepo) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE group_id = $1`
	return r.listUsers(ctx, query, groupID)
}

// ListWithChatAccess retrieves every user belonging to any group whose
// access list contains the given chat
func (r *userRepo) ListWithChatAccess(ctx context.Context, chatID uuid.UUID) ([]model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		JOIN group_chats ON group_chats.group_id = users.group_id
		WHERE group_chats.chat_id = $1
	`
	return r.listUsers(ctx, query, chatID)
}

func (r *userRepo) listUsers(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Create provisions a new inactive user
func (r *userRepo) Create(ctx context.Context, name, rank string, groupID uuid.UUID, uid string) (model.User, error) {
	query := `
		INSERT INTO users (name, rank, group_id, uid)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, name, rank, groupID, uid))
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("UID already taken: %w", ErrDuplicate)
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Activate binds a public key and push token to the user and marks it active
func (r *userRepo) Activate(ctx context.Context, id uuid.UUID, rsaKey, expoPushToken string) error {
	query := `
		UPDATE users
		SET rsa_key = $2, expo_push_token = $3, activated = TRUE, locked = FALSE
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, rsaKey, expoPushToken); err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	return nil
}

// SetLocked updates the user's locked flag
func (r *userRepo) SetLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	query := `UPDATE users SET locked = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, locked); err != nil {
		return fmt.Errorf("failed to update lock state: %w", err)
	}
	return nil
}

// SetLastLogin stamps the user's last login time
func (r *userRepo) SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// SetLastLogout stamps the user's last logout time
func (r *userRepo) SetLastLogout(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_logout = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last logout: %w", err)
	}
	return nil
}
