package file

import (
	"context"
	"maps"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/secrets"
)

// FileStore reads credential material from a plain TOML vault on disk.
type FileStore struct {
	vaultPath string
}

func NewFileStore(c Config) (*FileStore, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(c.VaultPath); err != nil {
		return nil, err
	}
	return &FileStore{vaultPath: c.VaultPath}, nil
}

// Lookup merges global secrets with any role- and host-scoped overrides.
func (s *FileStore) Lookup(_ context.Context, f secrets.Filter) map[string]interface{} {
	var vault secrets.Vault
	results := make(map[string]interface{})

	raw, err := os.ReadFile(s.vaultPath)
	if err != nil {
		log.Warn("unable to read vault", "path", s.vaultPath, "error", err)
		return results
	}
	if err := toml.Unmarshal(raw, &vault); err != nil {
		log.Warn("unable to parse vault", "path", s.vaultPath, "error", err)
		return results
	}

	maps.Copy(results, vault.Globals)
	if f.Role != "" {
		maps.Copy(results, vault.Roles[f.Role])
	}
	if f.Hostname != "" {
		maps.Copy(results, vault.Hosts[f.Hostname])
	}
	return results
}
