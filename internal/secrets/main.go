// Package secrets supplies the cluster credential material (the munge key,
// jwt signing keys) the configuration step installs.
package secrets

import (
	"context"
)

// KeyMungeKey is the reserved vault key for the base64-encoded munge key.
const KeyMungeKey = "munge_key"

type Store interface {
	Lookup(context.Context, Filter) map[string]interface{}
}

type Config interface {
	SecretsType() string
	Validate() error
}

type Filter struct {
	Hostname string
	Role     string
}

type Vault struct {
	Globals map[string]interface{}            `toml:"globals"`
	Hosts   map[string]map[string]interface{} `toml:"hosts"`
	Roles   map[string]map[string]interface{} `toml:"roles"`
}

// GetString pulls a string-valued secret out of a lookup result.
func GetString(m map[string]interface{}, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	return s
}
