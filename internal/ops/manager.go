// Package ops sequences the configuration of a slurm host: render the
// documents, install them, and bounce the affected daemons in dependency
// order.
package ops

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/files"
	"github.com/omnivector-solutions/slurm-ops-manager/internal/install"
	"github.com/omnivector-solutions/slurm-ops-manager/internal/render"
	"github.com/omnivector-solutions/slurm-ops-manager/internal/slurm"
)

// MungeUnit is the secret-bearing service every slurm daemon authenticates
// through.
const MungeUnit = "munge.service"

// Reconciler drives the host service manager.
type Reconciler interface {
	Restart(ctx context.Context, unit string) error
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Enable(ctx context.Context, unit string) error
	DaemonReload(ctx context.Context) error
}

type Manager struct {
	conf     *Config
	paths    slurm.Paths
	renderer *render.Renderer
	services Reconciler
}

func NewManager(c *Config, services Reconciler) *Manager {
	return &Manager{
		conf:     c,
		paths:    c.Paths(),
		renderer: render.NewRenderer(),
		services: services,
	}
}

// Apply installs the supplied configuration on the host. The sequence is
// fixed: write the munge key, restart munge, write the role's main config,
// restart the role's daemon. The munge key must be serving before the
// primary daemon restarts because the daemon authenticates with it at
// startup. Any failure aborts the remaining steps; re-invoking with the
// same context converges to the same end state.
func (m *Manager) Apply(ctx context.Context, cc slurm.ConfigContext) error {
	m.fillDefaults(&cc)

	if err := m.writeMungeKey(cc.MungeKey); err != nil {
		return fmt.Errorf("writing munge key: %w", err)
	}
	if err := m.services.Restart(ctx, MungeUnit); err != nil {
		return fmt.Errorf("restarting munge: %w", err)
	}

	doc, err := m.renderer.Render(m.conf.Role.TemplateName(), cc)
	if err != nil {
		return fmt.Errorf("rendering %v: %w", m.conf.Role.ConfFile(), err)
	}
	target := m.paths.ConfPath(m.conf.Role)
	if m.conf.Diffs {
		old, _ := os.ReadFile(target)
		log.Info("configuration change", "path", target, "diff", files.Diff(string(old), doc))
	}
	if err := files.Write(target, []byte(doc), m.conf.SlurmUser, m.conf.SlurmGroup, m.confMode()); err != nil {
		return fmt.Errorf("writing %v: %w", target, err)
	}
	if err := m.services.Restart(ctx, m.conf.Role.Unit()); err != nil {
		return fmt.Errorf("restarting %v: %w", m.conf.Role, err)
	}
	log.Info("configuration applied", "role", m.conf.Role, "config", target)
	return nil
}

// slurmdbd.conf carries database credentials, so it alone is locked down.
func (m *Manager) confMode() os.FileMode {
	if m.conf.Role == slurm.RoleSlurmdbd {
		return 0o600
	}
	return 0o644
}

// fillDefaults backfills the context fields every rendering needs from the
// host configuration, leaving caller-supplied values alone.
func (m *Manager) fillDefaults(cc *slurm.ConfigContext) {
	if cc.MungeSocket == "" {
		cc.MungeSocket = m.paths.MungeSocket
	}
	if cc.MailProg == "" {
		cc.MailProg = m.paths.MailProg
	}
	if cc.SlurmUser == "" {
		cc.SlurmUser = m.conf.SlurmUser
	}
	if cc.SlurmctldPidFile == "" {
		cc.SlurmctldPidFile = m.paths.PidFile(slurm.RoleSlurmctld)
	}
	if cc.SlurmdPidFile == "" {
		cc.SlurmdPidFile = m.paths.PidFile(slurm.RoleSlurmd)
	}
	if cc.SlurmdbdPidFile == "" {
		cc.SlurmdbdPidFile = m.paths.PidFile(slurm.RoleSlurmdbd)
	}
	if cc.SlurmctldLogFile == "" {
		cc.SlurmctldLogFile = m.paths.LogFile(slurm.RoleSlurmctld)
	}
	if cc.SlurmdLogFile == "" {
		cc.SlurmdLogFile = m.paths.LogFile(slurm.RoleSlurmd)
	}
	if cc.SlurmdbdLogFile == "" {
		cc.SlurmdbdLogFile = m.paths.LogFile(slurm.RoleSlurmdbd)
	}
	if cc.SpoolDir == "" {
		cc.SpoolDir = m.paths.SpoolDir
	}
	if cc.StateDir == "" {
		cc.StateDir = m.paths.StateDir
	}
	if cc.PluginDir == "" {
		cc.PluginDir = m.paths.PluginDir
	}
	if cc.PlugstackConf == "" {
		cc.PlugstackConf = m.paths.PlugstackConf()
	}
	if cc.JWTKeyFile == "" {
		cc.JWTKeyFile = m.paths.JWTKeyPath()
	}
	if cc.SlurmdbdPort == "" {
		cc.SlurmdbdPort = slurm.RoleSlurmdbd.Port()
	}
	// enable_configless is always on; merge with whatever the caller sent
	// and keep the result stable across invocations.
	params := append([]string{"enable_configless"}, cc.SlurmctldParameters...)
	slices.Sort(params)
	cc.SlurmctldParameters = slices.Compact(params)
}

func (m *Manager) writeMungeKey(encoded string) error {
	if encoded == "" {
		return errors.New("configuration is missing munge_key")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("munge key is not valid base64: %w", err)
	}
	return files.Write(m.paths.MungeKeyPath, key, m.conf.MungeUser, m.conf.MungeGroup, 0o600)
}

// GetMungeKey reads the installed munge key back, base64-encoded.
func (m *Manager) GetMungeKey() (string, error) {
	key, err := os.ReadFile(m.paths.MungeKeyPath)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// GenerateJWTKey produces a fresh PEM-encoded RSA key for jwt signing.
func (m *Manager) GenerateJWTKey() (string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", err
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block)), nil
}

// WriteJWTKey installs the jwt signing key into the state directory,
// readable by the slurm user only.
func (m *Manager) WriteJWTKey(pemKey string) error {
	return files.Write(m.paths.JWTKeyPath(), []byte(pemKey), m.conf.SlurmUser, m.conf.SlurmGroup, 0o600)
}

// WriteCgroupConf installs caller-supplied cgroup.conf content verbatim.
func (m *Manager) WriteCgroupConf(content string) error {
	target := filepath.Join(m.paths.ConfDir, "cgroup.conf")
	return files.Write(target, []byte(content), m.conf.SlurmUser, m.conf.SlurmGroup, 0o644)
}

// WriteAcctGatherConf installs caller-supplied acct_gather.conf content.
func (m *Manager) WriteAcctGatherConf(content string) error {
	target := filepath.Join(m.paths.ConfDir, "acct_gather.conf")
	return files.Write(target, []byte(content), m.conf.SlurmUser, m.conf.SlurmGroup, 0o644)
}

// RemoveAcctGatherConf drops acct_gather.conf when accounting gathering is
// turned off. Removing an absent file is not an error.
func (m *Manager) RemoveAcctGatherConf() error {
	target := filepath.Join(m.paths.ConfDir, "acct_gather.conf")
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteNHCConfig renders the node health check configuration.
func (m *Manager) WriteNHCConfig(extraConfigs []string) error {
	doc, err := m.renderer.Render(render.TemplateNHCConf, render.NHCContext{
		MungeUser:    m.conf.MungeUser,
		ExtraConfigs: extraConfigs,
	})
	if err != nil {
		return err
	}
	return files.Write("/etc/nhc/nhc.conf", []byte(doc), "root", "root", 0o644)
}

// WriteConfiglessOverride points slurmd at the controller so it can fetch
// its configuration instead of reading a local slurm.conf.
func (m *Manager) WriteConfiglessOverride(ctx context.Context, host, port string) error {
	doc, err := m.renderer.Render(render.TemplateConfiglessDefault, render.ConfiglessContext{
		Host: host,
		Port: port,
	})
	if err != nil {
		return err
	}
	target := "/etc/default/slurmd"
	if m.conf.OS != "ubuntu" {
		target = "/etc/sysconfig/slurmd"
	}
	if err := files.Write(target, []byte(doc), "root", "root", 0o644); err != nil {
		return err
	}
	return m.services.DaemonReload(ctx)
}

// Install detects the supplied artifact's kind, installs it, and prepares
// the host: nofile overrides, logrotate profiles, units reloaded and
// stopped pending the first Apply.
func (m *Manager) Install(ctx context.Context, artifact string) error {
	kind, err := install.DetectArtifact(artifact)
	if err != nil {
		return err
	}
	log.Info("detected slurm artifact", "artifact", artifact, "kind", kind)
	installer, err := install.NewInstaller(kind, m.conf.InstallPrefix)
	if err != nil {
		return err
	}
	if err := installer.Install(ctx, artifact); err != nil {
		return fmt.Errorf("installing %v: %w", artifact, err)
	}
	if err := m.writeNofileOverride(); err != nil {
		return err
	}
	if err := m.writeLogrotateProfile(); err != nil {
		return err
	}
	if err := m.services.DaemonReload(ctx); err != nil {
		return err
	}
	if err := m.services.Enable(ctx, m.conf.Role.Unit()); err != nil {
		log.Warn("could not enable freshly installed unit", "unit", m.conf.Role.Unit(), "error", err)
	}
	// the packages enable and start the daemons; stop them so first
	// configuration controls the startup sequence
	if err := m.services.Stop(ctx, m.conf.Role.Unit()); err != nil {
		log.Warn("could not stop freshly installed unit", "unit", m.conf.Role.Unit(), "error", err)
	}
	if err := m.services.Stop(ctx, MungeUnit); err != nil {
		log.Warn("could not stop munge", "error", err)
	}
	return nil
}

func (m *Manager) writeNofileOverride() error {
	doc, err := m.renderer.Render(render.TemplateNofileOverride, nil)
	if err != nil {
		return err
	}
	dropInDir := filepath.Join(m.conf.SystemdDropInDir, m.conf.Role.Unit()+".d")
	if err := os.MkdirAll(dropInDir, 0o755); err != nil {
		return err
	}
	return files.Write(filepath.Join(dropInDir, "override.conf"), []byte(doc), "root", "root", 0o644)
}

const logrotateProfile = `/var/log/slurm/*.log {
	weekly
	missingok
	rotate 4
	compress
	notifempty
	copytruncate
}
`

func (m *Manager) writeLogrotateProfile() error {
	target := filepath.Join(m.conf.LogrotateDir, "slurm")
	return files.Write(target, []byte(logrotateProfile), "root", "root", 0o644)
}

// CheckMunged round-trips a credential through munge to verify the daemon
// serves the installed key.
func (m *Manager) CheckMunged(ctx context.Context) bool {
	munge := exec.CommandContext(ctx, "munge", "-n")
	unmunge := exec.CommandContext(ctx, "unmunge")
	pipe, err := munge.StdoutPipe()
	if err != nil {
		return false
	}
	unmunge.Stdin = pipe
	if err := munge.Start(); err != nil {
		log.Error("error running munge", "error", err)
		return false
	}
	out, err := unmunge.Output()
	if werr := munge.Wait(); werr != nil {
		log.Error("munge exited uncleanly", "error", werr)
		return false
	}
	if err != nil {
		log.Error("error running unmunge", "error", err)
		return false
	}
	return strings.Contains(string(out), "Success")
}
