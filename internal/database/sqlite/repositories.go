package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/identity-matcher/internal/database"
)

// Timestamps are stored as RFC 3339 text with nanoseconds so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func (s *Store) AddReferenceImage(ctx context.Context, img *database.ReferenceImage) error {
	database.Stamp(&img.ID, &img.CreatedAt)

	err := s.execWithRetry(ctx, `
		INSERT INTO reference_images (id, profile_id, image_cid, image_url, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, img.ID, img.ProfileID, img.ContentID, img.URL, formatTime(img.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", database.ErrDuplicateContentID, img.ContentID)
		}
		return fmt.Errorf("insert reference image: %w", err)
	}
	return nil
}

func (s *Store) ListReferenceImages(ctx context.Context) ([]database.ReferenceImage, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var created string
		if err := rows.Scan(&img.ID, &img.ProfileID, &img.ContentID, &img.URL, &created); err != nil {
			return nil, fmt.Errorf("scan reference image: %w", err)
		}
		if img.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference images: %w", err)
	}
	return images, nil
}

func (s *Store) CountReferenceImages(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reference_images").Scan(&count); err != nil {
		return 0, fmt.Errorf("count reference images: %w", err)
	}
	return count, nil
}

func (s *Store) InsertVerificationRecord(ctx context.Context, rec *database.VerificationRecord) error {
	database.Stamp(&rec.ID, &rec.CreatedAt)

	err := s.execWithRetry(ctx, `
		INSERT INTO identity_records
			(id, user_address, profile_id, hashed_url, ipfs_cid, match_score, verification_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserAddress, rec.ProfileID, rec.HashedURL, rec.ContentID, rec.MatchScore,
		string(rec.Status), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert verification record: %w", err)
	}
	return nil
}

func (s *Store) ListVerificationRecords(ctx context.Context, userAddress string, limit int) ([]database.VerificationRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_address, profile_id, hashed_url, ipfs_cid, match_score, verification_status, created_at
		FROM identity_records
		WHERE user_address = ? COLLATE NOCASE
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("query verification records: %w", err)
	}
	defer rows.Close()

	var records []database.VerificationRecord
	for rows.Next() {
		var rec database.VerificationRecord
		var status, created string
		if err := rows.Scan(&rec.ID, &rec.UserAddress, &rec.ProfileID, &rec.HashedURL,
			&rec.ContentID, &rec.MatchScore, &status, &created); err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		rec.Status = database.VerificationStatus(status)
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification records: %w", err)
	}
	return records, nil
}

func (s *Store) InsertRegistration(ctx context.Context, reg *database.Registration) error {
	database.Stamp(&reg.ID, &reg.CreatedAt)

	err := s.execWithRetry(ctx, `
		INSERT INTO registrations
			(id, user_address, profile_id, hashed_url, ipfs_cid, match_score, tx_hash, block_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, reg.ID, reg.UserAddress, reg.ProfileID, reg.HashedURL, reg.ContentID, reg.MatchScore,
		reg.TxHash, int64(reg.BlockNumber), formatTime(reg.CreatedAt)) //nolint:gosec // block numbers fit in int64
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *Store) ListRegistrations(ctx context.Context, userAddress string) ([]database.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_address, profile_id, hashed_url, ipfs_cid, match_score, tx_hash, block_number, created_at
		FROM registrations
		WHERE user_address = ? COLLATE NOCASE
		ORDER BY created_at DESC, id DESC
	`, userAddress)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var regs []database.Registration
	for rows.Next() {
		var reg database.Registration
		var block int64
		var created string
		if err := rows.Scan(&reg.ID, &reg.UserAddress, &reg.ProfileID, &reg.HashedURL, &reg.ContentID,
			&reg.MatchScore, &reg.TxHash, &block, &created); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.BlockNumber = uint64(block) //nolint:gosec // stored from a uint64
		if reg.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}

var (
	_ database.CatalogWriter     = (*Store)(nil)
	_ database.RecordStore       = (*Store)(nil)
	_ database.RegistrationStore = (*Store)(nil)
)
