package database

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the stored outcome of a verification attempt.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusRejected VerificationStatus = "rejected"
)

// Valid reports whether s is one of the statuses accepted by the schema.
func (s VerificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// ReferenceImage binds a stored image to an identity profile.
type ReferenceImage struct {
	ID        string    `json:"id"`
	ProfileID int64     `json:"profile_id"`
	ContentID string    `json:"content_id"` // unique across the catalog
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// VerificationRecord is the durable, insert-only trace of one verification attempt.
type VerificationRecord struct {
	ID          string             `json:"id"`
	UserAddress string             `json:"user_address"`
	ProfileID   int64              `json:"profile_id"` // 0 when nothing matched
	HashedURL   string             `json:"hashed_url"`
	ContentID   string             `json:"content_id"`
	MatchScore  int                `json:"match_score"` // 0-100
	Status      VerificationStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Registration is the local audit row of a successful ledger commit.
type Registration struct {
	ID          string    `json:"id"`
	UserAddress string    `json:"user_address"`
	ProfileID   int64     `json:"profile_id"`
	HashedURL   string    `json:"hashed_url"`
	ContentID   string    `json:"content_id"`
	MatchScore  int       `json:"match_score"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stamp fills an empty id with a new UUID and a zero timestamp with the current UTC time.
func Stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}
