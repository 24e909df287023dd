package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/secrets"
)

const vaultDoc = `[globals]
munge_key = "Z2xvYmFs"
jwt_key = "pemdata"

[roles.slurmdbd]
munge_key = "ZGJkLXJvbGU="
storage_pass = "hunter2"

[hosts.n1]
munge_key = "aG9zdA=="
`

func writeVault(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.toml")
	require.NoError(t, os.WriteFile(path, []byte(vaultDoc), 0o600))
	return path
}

func TestNewFileStore(t *testing.T) {
	_, err := NewFileStore(Config{VaultPath: writeVault(t)})
	assert.NoError(t, err)

	_, err = NewFileStore(Config{})
	assert.Error(t, err)

	_, err = NewFileStore(Config{VaultPath: "/does/not/exist.toml"})
	assert.Error(t, err)
}

func TestLookupGlobals(t *testing.T) {
	store, err := NewFileStore(Config{VaultPath: writeVault(t)})
	require.NoError(t, err)

	found := store.Lookup(context.Background(), secrets.Filter{})
	assert.Equal(t, "Z2xvYmFs", secrets.GetString(found, secrets.KeyMungeKey))
	assert.Equal(t, "pemdata", secrets.GetString(found, "jwt_key"))
}

func TestLookupRoleOverridesGlobals(t *testing.T) {
	store, err := NewFileStore(Config{VaultPath: writeVault(t)})
	require.NoError(t, err)

	found := store.Lookup(context.Background(), secrets.Filter{Role: "slurmdbd"})
	assert.Equal(t, "ZGJkLXJvbGU=", secrets.GetString(found, secrets.KeyMungeKey))
	assert.Equal(t, "hunter2", secrets.GetString(found, "storage_pass"))
	assert.Equal(t, "pemdata", secrets.GetString(found, "jwt_key"))
}

func TestLookupHostOverridesRole(t *testing.T) {
	store, err := NewFileStore(Config{VaultPath: writeVault(t)})
	require.NoError(t, err)

	found := store.Lookup(context.Background(), secrets.Filter{Role: "slurmdbd", Hostname: "n1"})
	assert.Equal(t, "aG9zdA==", secrets.GetString(found, secrets.KeyMungeKey))
}

func TestLookupUnknownScopesFallBack(t *testing.T) {
	store, err := NewFileStore(Config{VaultPath: writeVault(t)})
	require.NoError(t, err)

	found := store.Lookup(context.Background(), secrets.Filter{Role: "slurmd", Hostname: "n99"})
	assert.Equal(t, "Z2xvYmFs", secrets.GetString(found, secrets.KeyMungeKey))
}

func TestGetStringMissingOrWrongType(t *testing.T) {
	m := map[string]interface{}{"count": 3}
	assert.Empty(t, secrets.GetString(m, "count"))
	assert.Empty(t, secrets.GetString(m, "missing"))
}
