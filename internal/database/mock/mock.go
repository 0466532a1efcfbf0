// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/identity-matcher/internal/database"
)

// Catalog is an in-memory database.CatalogWriter.
type Catalog struct {
	mu     sync.RWMutex
	images []database.ReferenceImage

	// Error injection
	ListError  error
	CountError error
	AddError   error
	// AddErrorFor fails AddReferenceImage only for the given content ids.
	AddErrorFor map[string]error
}

func NewCatalog(images ...database.ReferenceImage) *Catalog {
	return &Catalog{images: append([]database.ReferenceImage(nil), images...)}
}

func (c *Catalog) AddReferenceImage(ctx context.Context, img *database.ReferenceImage) error {
	if c.AddError != nil {
		return c.AddError
	}
	if err := c.AddErrorFor[img.ContentID]; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.images {
		if existing.ContentID == img.ContentID {
			return fmt.Errorf("%w: %s", database.ErrDuplicateContentID, img.ContentID)
		}
	}
	database.Stamp(&img.ID, &img.CreatedAt)
	c.images = append(c.images, *img)
	return nil
}

func (c *Catalog) ListReferenceImages(ctx context.Context) ([]database.ReferenceImage, error) {
	if c.ListError != nil {
		return nil, c.ListError
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]database.ReferenceImage, len(c.images))
	copy(out, c.images)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProfileID < out[j].ProfileID })
	return out, nil
}

func (c *Catalog) CountReferenceImages(ctx context.Context) (int, error) {
	if c.CountError != nil {
		return 0, c.CountError
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images), nil
}

// Records is an in-memory database.RecordStore.
type Records struct {
	mu      sync.RWMutex
	records []database.VerificationRecord

	// Error injection
	InsertError error
	ListError   error
}

func NewRecords() *Records {
	return &Records{}
}

func (r *Records) InsertVerificationRecord(ctx context.Context, rec *database.VerificationRecord) error {
	if r.InsertError != nil {
		return r.InsertError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	database.Stamp(&rec.ID, &rec.CreatedAt)
	r.records = append(r.records, *rec)
	return nil
}

func (r *Records) ListVerificationRecords(ctx context.Context, userAddress string, limit int) ([]database.VerificationRecord, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []database.VerificationRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if strings.EqualFold(r.records[i].UserAddress, userAddress) {
			out = append(out, r.records[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every stored record in insertion order.
func (r *Records) All() []database.VerificationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]database.VerificationRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Registrations is an in-memory database.RegistrationStore.
type Registrations struct {
	mu   sync.RWMutex
	regs []database.Registration

	// Error injection
	InsertError error
	ListError   error
}

func NewRegistrations() *Registrations {
	return &Registrations{}
}

func (r *Registrations) InsertRegistration(ctx context.Context, reg *database.Registration) error {
	if r.InsertError != nil {
		return r.InsertError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	database.Stamp(&reg.ID, &reg.CreatedAt)
	r.regs = append(r.regs, *reg)
	return nil
}

func (r *Registrations) ListRegistrations(ctx context.Context, userAddress string) ([]database.Registration, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []database.Registration
	for i := len(r.regs) - 1; i >= 0; i-- {
		if strings.EqualFold(r.regs[i].UserAddress, userAddress) {
			out = append(out, r.regs[i])
		}
	}
	return out, nil
}

// Backend returns a database.Backend serving the given mocks.
func Backend(c *Catalog, r *Records, g *Registrations) *database.Backend {
	return &database.Backend{
		Name:          "mock",
		Catalog:       func() database.CatalogWriter { return c },
		Records:       func() database.RecordStore { return r },
		Registrations: func() database.RegistrationStore { return g },
	}
}

var (
	_ database.CatalogWriter     = (*Catalog)(nil)
	_ database.RecordStore       = (*Records)(nil)
	_ database.RegistrationStore = (*Registrations)(nil)
)
