package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrIdentifierUsed is returned when a request identifier has already been claimed
var ErrIdentifierUsed = errors.New("request identifier already used")

// IdentifierRepo records consumed request identifiers for replay protection
type IdentifierRepo interface {
	// Claim atomically records the identifier as consumed by the user.
	// Returns ErrIdentifierUsed if it was consumed before; the unique
	// index makes the claim race-free under concurrent authentications.
	Claim(ctx context.Context, claimedBy uuid.UUID, identifier string) error
}

type identifierRepo struct {
	db *sql.DB
}

// NewIdentifierRepo creates a new IdentifierRepo instance
func NewIdentifierRepo(db *sql.DB) IdentifierRepo {
	return &identifierRepo{db: db}
}

// Claim records the identifier as consumed
func (r *identifierRepo) Claim(ctx context.Context, claimedBy uuid.UUID, identifier string) error {
	query := `
		INSERT INTO request_identifiers (claimed_by, identifier)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, claimedBy, identifier); err != nil {
		if isUniqueViolation(err) {
			return ErrIdentifierUsed
		}
		return fmt.Errorf("failed to claim request identifier: %w", err)
	}
	return nil
}
