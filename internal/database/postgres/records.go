package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/identity-matcher/internal/database"
)

// RecordRepository stores verification records in the identity_records table.
type RecordRepository struct {
	pool *Pool
}

func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

func (r *RecordRepository) InsertVerificationRecord(ctx context.Context, rec *database.VerificationRecord) error {
	database.Stamp(&rec.ID, &rec.CreatedAt)

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO identity_records
			(id, user_address, profile_id, hashed_url, ipfs_cid, match_score, verification_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.UserAddress, rec.ProfileID, rec.HashedURL, rec.ContentID, rec.MatchScore, string(rec.Status), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification record: %w", err)
	}
	return nil
}

func (r *RecordRepository) ListVerificationRecords(ctx context.Context, userAddress string, limit int) ([]database.VerificationRecord, error) {
	query := `
		SELECT id, user_address, profile_id, hashed_url, ipfs_cid, match_score, verification_status, created_at
		FROM identity_records
		WHERE LOWER(user_address) = LOWER($1)
		ORDER BY created_at DESC, id DESC
	`
	args := []any{userAddress}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verification records: %w", err)
	}
	defer rows.Close()

	var records []database.VerificationRecord
	for rows.Next() {
		var rec database.VerificationRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserAddress, &rec.ProfileID, &rec.HashedURL,
			&rec.ContentID, &rec.MatchScore, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		rec.Status = database.VerificationStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification records: %w", err)
	}
	return records, nil
}
