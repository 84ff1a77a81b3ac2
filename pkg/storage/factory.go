package storage

import (
	"fmt"

	"github.com/connectrunner/connectrunner/pkg/config"
)

// ProviderType represents the type of storage provider
type ProviderType string

const (
	// MemoryProviderType is an in-memory storage provider
	MemoryProviderType ProviderType = "memory"

	// PostgreSQLProviderType is a PostgreSQL storage provider
	PostgreSQLProviderType ProviderType = "postgresql"
)

// NewProvider creates a run store based on the configuration
func NewProvider(cfg config.StorageConfig) (RunStore, error) {
	switch ProviderType(cfg.Type) {
	case MemoryProviderType, "":
		return NewMemoryProvider(), nil

	case PostgreSQLProviderType:
		return NewPostgreSQLProvider(cfg.Postgres)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
