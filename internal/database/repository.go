package database

import (
	"context"
	"errors"
)

// ErrDuplicateContentID is returned when a content id is already in the catalog.
var ErrDuplicateContentID = errors.New("content id already registered")

// CatalogReader provides read-only access to reference images
type CatalogReader interface {
	// ListReferenceImages returns the whole catalog ordered by profile id ascending
	ListReferenceImages(ctx context.Context) ([]ReferenceImage, error)
	// CountReferenceImages returns the number of catalog entries
	CountReferenceImages(ctx context.Context) (int, error)
}

// CatalogWriter provides write access to reference images
type CatalogWriter interface {
	CatalogReader

	// AddReferenceImage inserts one image. ID and CreatedAt are assigned when empty.
	// Returns ErrDuplicateContentID if the content id is already present.
	AddReferenceImage(ctx context.Context, img *ReferenceImage) error
}

// RecordWriter persists verification records. Records are never updated.
type RecordWriter interface {
	InsertVerificationRecord(ctx context.Context, rec *VerificationRecord) error
}

// RecordReader lists verification records for a wallet address, newest first.
// Address comparison is case-insensitive; limit <= 0 means no limit.
type RecordReader interface {
	ListVerificationRecords(ctx context.Context, userAddress string, limit int) ([]VerificationRecord, error)
}

type RecordStore interface {
	RecordWriter
	RecordReader
}

// RegistrationStore keeps the audit trail of ledger commits.
type RegistrationStore interface {
	InsertRegistration(ctx context.Context, reg *Registration) error
	ListRegistrations(ctx context.Context, userAddress string) ([]Registration, error)
}
