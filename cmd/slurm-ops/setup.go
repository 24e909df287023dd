package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/ops"
	"github.com/omnivector-solutions/slurm-ops-manager/internal/secrets"
	filesecrets "github.com/omnivector-solutions/slurm-ops-manager/internal/secrets/file"
	"github.com/omnivector-solutions/slurm-ops-manager/internal/services"
	"github.com/omnivector-solutions/slurm-ops-manager/internal/slurm"
)

func setupLogger(c *ops.Config) {
	if c.Debug {
		log.Default().SetLevel(log.DebugLevel)
		log.Default().SetReportCaller(true)
	}
}

func loadConfig(ctx context.Context, configFile string, cliflags map[string]any) (*ops.Config, error) {
	k, err := LoadConfigs(ctx, configFile, cliflags)
	if err != nil {
		return nil, fmt.Errorf("error generating config blob: %w", err)
	}
	c, err := ops.NewConfig(k)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return c, nil
}

func setup(ctx context.Context, configFile string, cliflags map[string]any) (*ops.Manager, func(), error) {
	c, err := loadConfig(ctx, configFile, cliflags)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("error validating config: %w", err)
	}
	setupLogger(c)

	sm, err := services.NewServices(ctx, &services.ServicesConfig{Timeout: c.Timeout})
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to systemd: %w", err)
	}
	return ops.NewManager(c, sm), sm.Close, nil
}

// loadContextFile reads the YAML configuration context. When the caller
// didn't put the munge key in the context, the configured vault is
// consulted for it.
func loadContextFile(ctx context.Context, path, configFile string, cliflags map[string]any) (slurm.ConfigContext, error) {
	var cc slurm.ConfigContext
	raw, err := os.ReadFile(path)
	if err != nil {
		return cc, fmt.Errorf("error reading context file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cc); err != nil {
		return cc, fmt.Errorf("error parsing context file: %w", err)
	}
	c, err := loadConfig(ctx, configFile, cliflags)
	if err != nil {
		return cc, err
	}
	if cc.MungeKey == "" && c.VaultPath != "" {
		store, err := filesecrets.NewFileStore(filesecrets.Config{VaultPath: c.VaultPath})
		if err != nil {
			return cc, fmt.Errorf("error opening vault: %w", err)
		}
		found := store.Lookup(ctx, secrets.Filter{
			Hostname: c.Hostname,
			Role:     string(c.Role),
		})
		cc.MungeKey = secrets.GetString(found, secrets.KeyMungeKey)
	}
	return cc, nil
}

func LoadConfigs(_ context.Context, configFile string, cliflags map[string]any) (*koanf.Koanf, error) {
	k := koanf.New(".")
	fileConf := koanf.New(".")
	envConf := koanf.New(".")
	cliConf := koanf.New(".")
	if configFile != "" {
		err := fileConf.Load(file.Provider(configFile), toml.Parser())
		if err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}
	err := envConf.Load(env.Provider("SLURM_OPS", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SLURM_OPS_")), "__", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading config from env: %w", err)
	}
	err = cliConf.Load(confmap.Provider(cliflags, "."), nil)
	if err != nil {
		return nil, err
	}
	err = k.Merge(fileConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}
	err = k.Merge(envConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}
	err = k.Merge(cliConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}

	return k, err
}
