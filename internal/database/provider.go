package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Backend bundles repository constructors of one storage implementation.
// Backends register themselves to avoid import cycles.
type Backend struct {
	Name          string
	Catalog       func() CatalogWriter
	Records       func() RecordStore
	Registrations func() RegistrationStore
	Ping          func(ctx context.Context) error
}

var (
	backend   *Backend
	backendMu sync.RWMutex
)

var errNotInitialized = errors.New("database backend not initialized: DATABASE_URL is required")

// RegisterBackend makes b the active storage backend.
func RegisterBackend(b *Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backend = b
}

// ResetBackend clears the active backend. Used when a pool is closed.
func ResetBackend() {
	backendMu.Lock()
	defer backendMu.Unlock()
	backend = nil
}

func active() (*Backend, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if backend == nil {
		return nil, errNotInitialized
	}
	return backend, nil
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	_, err := active()
	return err == nil
}

// BackendName returns the active backend name, or "" when none is registered.
func BackendName() string {
	b, err := active()
	if err != nil {
		return ""
	}
	return b.Name
}

// GetCatalogWriter returns the reference image repository of the active backend
func GetCatalogWriter(ctx context.Context) (CatalogWriter, error) {
	b, err := active()
	if err != nil {
		return nil, err
	}
	if b.Catalog == nil {
		return nil, fmt.Errorf("%s catalog repository not registered", b.Name)
	}
	return b.Catalog(), nil
}

// GetCatalogReader returns the catalog as a read-only view
func GetCatalogReader(ctx context.Context) (CatalogReader, error) {
	return GetCatalogWriter(ctx)
}

// GetRecordStore returns the verification record repository of the active backend
func GetRecordStore(ctx context.Context) (RecordStore, error) {
	b, err := active()
	if err != nil {
		return nil, err
	}
	if b.Records == nil {
		return nil, fmt.Errorf("%s record repository not registered", b.Name)
	}
	return b.Records(), nil
}

// GetRegistrationStore returns the registration audit repository of the active backend
func GetRegistrationStore(ctx context.Context) (RegistrationStore, error) {
	b, err := active()
	if err != nil {
		return nil, err
	}
	if b.Registrations == nil {
		return nil, fmt.Errorf("%s registration repository not registered", b.Name)
	}
	return b.Registrations(), nil
}

// Ping checks connectivity of the active backend.
func Ping(ctx context.Context) error {
	b, err := active()
	if err != nil {
		return err
	}
	if b.Ping == nil {
		return nil
	}
	return b.Ping(ctx)
}
