package mem

import (
	"context"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/secrets"
)

type MemoryStore struct {
	secrets map[string]interface{}
}

type MemoryConfig struct{}

func (m MemoryConfig) Validate() error { return nil }

func (m MemoryConfig) SecretsType() string { return "memory" }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]interface{})}
}

func (m *MemoryStore) Lookup(_ context.Context, _ secrets.Filter) map[string]interface{} {
	return m.secrets
}

func (m *MemoryStore) Add(key, value string) {
	m.secrets[key] = value
}
