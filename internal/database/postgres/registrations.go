package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/identity-matcher/internal/database"
)

// RegistrationRepository stores the audit trail of ledger commits.
type RegistrationRepository struct {
	pool *Pool
}

func NewRegistrationRepository(pool *Pool) *RegistrationRepository {
	return &RegistrationRepository{pool: pool}
}

func (r *RegistrationRepository) InsertRegistration(ctx context.Context, reg *database.Registration) error {
	database.Stamp(&reg.ID, &reg.CreatedAt)

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO registrations
			(id, user_address, profile_id, hashed_url, ipfs_cid, match_score, tx_hash, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, reg.ID, reg.UserAddress, reg.ProfileID, reg.HashedURL, reg.ContentID, reg.MatchScore,
		reg.TxHash, int64(reg.BlockNumber), reg.CreatedAt) //nolint:gosec // block numbers fit in int64
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) ListRegistrations(ctx context.Context, userAddress string) ([]database.Registration, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, user_address, profile_id, hashed_url, ipfs_cid, match_score, tx_hash, block_number, created_at
		FROM registrations
		WHERE LOWER(user_address) = LOWER($1)
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
		if err := rows.Scan(&reg.ID, &reg.UserAddress, &reg.ProfileID, &reg.HashedURL, &reg.ContentID,
			&reg.MatchScore, &reg.TxHash, &block, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.BlockNumber = uint64(block) //nolint:gosec // stored from a uint64
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}
