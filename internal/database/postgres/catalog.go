package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/identity-matcher/internal/database"
)

// CatalogRepository stores reference images in the reference_images table.
type CatalogRepository struct {
	pool *Pool
}

func NewCatalogRepository(pool *Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) AddReferenceImage(ctx context.Context, img *database.ReferenceImage) error {
	database.Stamp(&img.ID, &img.CreatedAt)

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO reference_images (id, profile_id, image_cid, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, img.ID, img.ProfileID, img.ContentID, img.URL, img.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", database.ErrDuplicateContentID, img.ContentID)
		}
		return fmt.Errorf("insert reference image: %w", err)
	}
	return nil
}

func (r *CatalogRepository) ListReferenceImages(ctx context.Context) ([]database.ReferenceImage, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, profile_id, image_cid, image_url, created_at
		FROM reference_images
		ORDER BY profile_id ASC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query reference images: %w", err)
	}
	defer rows.Close()

	var images []database.ReferenceImage
	for rows.Next() {
		var img database.ReferenceImage
		if err := rows.Scan(&img.ID, &img.ProfileID, &img.ContentID, &img.URL, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference images: %w", err)
	}
	return images, nil
}

func (r *CatalogRepository) CountReferenceImages(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reference_images").Scan(&count); err != nil {
		return 0, fmt.Errorf("count reference images: %w", err)
	}
	return count, nil
}
