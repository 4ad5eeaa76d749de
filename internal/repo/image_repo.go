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

// ImageRepo defines the interface for image repository operations
type ImageRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Image, error)
	GetByResourceID(ctx context.Context, resourceID string) (model.Image, error)
	GetByContentHash(ctx context.Context, contentHash string) (model.Image, error)
	Create(ctx context.Context, createdBy uuid.UUID, resourceID, extension, contentHash string) (model.Image, error)
}

type imageRepo struct {
	db *sql.DB
}

// NewImageRepo creates a new ImageRepo instance
func NewImageRepo(db *sql.DB) ImageRepo {
	return &imageRepo{db: db}
}

const imageColumns = `id, created_at, created_by, resource_id, extension, content_hash`

func scanImage(row interface{ Scan(dest ...any) error }) (model.Image, error) {
	var image model.Image
	var idStr, byStr string
	err := row.Scan(&idStr, &image.CreatedAt, &byStr, &image.ResourceID, &image.Extension, &image.ContentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Image{}, fmt.Errorf("image not found: %w", ErrNotFound)
		}
		return model.Image{}, fmt.Errorf("failed to query image: %w", err)
	}
	if image.ID, err = uuid.Parse(idStr); err != nil {
		return model.Image{}, fmt.Errorf("failed to parse image ID: %w", err)
	}
	if image.CreatedBy, err = uuid.Parse(byStr); err != nil {
		return model.Image{}, fmt.Errorf("failed to parse creator ID: %w", err)
	}
	return image, nil
}

// GetByID retrieves an image record by ID
func (r *imageRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`
	return scanImage(r.db.QueryRowContext(ctx, query, id))
}

// GetByResourceID retrieves an image record by its opaque resource ID
func (r *imageRepo) GetByResourceID(ctx context.Context, resourceID string) (model.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE resource_id = $1`
	return scanImage(r.db.QueryRowContext(ctx, query, resourceID))
}

// GetByContentHash retrieves an image record whose stored file has the given hash
func (r *imageRepo) GetByContentHash(ctx context.Context, contentHash string) (model.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE content_hash = $1`
	return scanImage(r.db.QueryRowContext(ctx, query, contentHash))
}

// Create inserts a new image record
func (r *imageRepo) Create(ctx context.Context, createdBy uuid.UUID, resourceID, extension, contentHash string) (model.Image, error) {
	query := `
		INSERT INTO images (created_by, resource_id, extension, content_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	var image model.Image
	var idStr string
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query, createdBy, resourceID, extension, contentHash).Scan(&idStr, &createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Image{}, fmt.Errorf("image content already stored: %w", ErrDuplicate)
		}
		return model.Image{}, fmt.Errorf("failed to create image: %w", err)
	}
	if image.ID, err = uuid.Parse(idStr); err != nil {
		return model.Image{}, fmt.Errorf("failed to parse image ID: %w", err)
	}
	image.CreatedAt = createdAt
	image.CreatedBy = createdBy
	image.ResourceID = resourceID
	image.Extension = extension
	image.ContentHash = contentHash
	return image, nil
}
