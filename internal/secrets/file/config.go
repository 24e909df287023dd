package file

import (
	"errors"

	"github.com/knadh/koanf/v2"
)

type Config struct {
	VaultPath string
}

func NewConfig(k *koanf.Koanf) (Config, error) {
	c := Config{
		VaultPath: k.String("vault"),
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.VaultPath == "" {
		return errors.New("file secrets store needs a vault path")
	}
	return nil
}

func (c Config) SecretsType() string { return "file" }
