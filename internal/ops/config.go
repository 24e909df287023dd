package ops

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/v2"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/slurm"
)

// Config is the explicit host configuration for the ops manager. Nothing
// here is ambient: every path and identity a component touches is decided
// once, at startup.
type Config struct {
	Debug   bool
	Diffs   bool
	Timeout int

	Role     slurm.Role
	Hostname string
	OS       string

	ConfDir      string
	SpoolDir     string
	StateDir     string
	LogDir       string
	PidDir       string
	PluginDir    string
	PlugstackDir string
	MungeKeyPath string
	MungeSocket  string
	MailProg     string

	InstallPrefix    string
	SystemdDropInDir string
	LogrotateDir     string

	SlurmUser  string
	SlurmGroup string
	MungeUser  string
	MungeGroup string

	VaultPath string
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	var c Config
	var err error

	c.Debug = k.Bool("debug")
	c.Diffs = k.Bool("diffs")
	c.Timeout = k.Int("timeout")
	c.Hostname = k.String("hostname")
	c.OS = k.String("os")
	c.ConfDir = k.String("confdir")
	c.SpoolDir = k.String("spooldir")
	c.StateDir = k.String("statedir")
	c.LogDir = k.String("logdir")
	c.PidDir = k.String("piddir")
	c.PluginDir = k.String("plugindir")
	c.PlugstackDir = k.String("plugstackdir")
	c.MungeKeyPath = k.String("mungekeypath")
	c.MungeSocket = k.String("mungesocket")
	c.MailProg = k.String("mailprog")
	c.InstallPrefix = k.String("installprefix")
	c.SystemdDropInDir = k.String("systemddropindir")
	c.LogrotateDir = k.String("logrotatedir")
	c.SlurmUser = k.String("slurmuser")
	c.SlurmGroup = k.String("slurmgroup")
	c.MungeUser = k.String("mungeuser")
	c.MungeGroup = k.String("mungegroup")
	c.VaultPath = k.String("vault")

	if k.Exists("role") {
		c.Role, err = slurm.ParseRole(k.String("role"))
		if err != nil {
			return nil, err
		}
	}

	// calculate defaults
	defaults := slurm.DefaultPaths()
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.OS == "" {
		c.OS = "ubuntu"
	}
	if c.ConfDir == "" {
		c.ConfDir = defaults.ConfDir
	}
	if c.SpoolDir == "" {
		c.SpoolDir = defaults.SpoolDir
	}
	if c.StateDir == "" {
		c.StateDir = defaults.StateDir
	}
	if c.LogDir == "" {
		c.LogDir = defaults.LogDir
	}
	if c.PidDir == "" {
		c.PidDir = defaults.PidDir
	}
	if c.PluginDir == "" {
		c.PluginDir = defaults.PluginDir
	}
	if c.PlugstackDir == "" {
		c.PlugstackDir = defaults.PlugstackDir
	}
	if c.MungeKeyPath == "" {
		c.MungeKeyPath = defaults.MungeKeyPath
	}
	if c.MungeSocket == "" {
		c.MungeSocket = defaults.MungeSocket
	}
	if c.MailProg == "" {
		c.MailProg = defaults.MailProg
	}
	if c.InstallPrefix == "" {
		c.InstallPrefix = "/"
	}
	if c.SystemdDropInDir == "" {
		c.SystemdDropInDir = "/etc/systemd/system"
	}
	if c.LogrotateDir == "" {
		c.LogrotateDir = "/etc/logrotate.d"
	}
	if c.SlurmUser == "" {
		c.SlurmUser = "slurm"
	}
	if c.SlurmGroup == "" {
		c.SlurmGroup = "slurm"
	}
	if c.MungeUser == "" {
		c.MungeUser = "munge"
	}
	if c.MungeGroup == "" {
		c.MungeGroup = "munge"
	}

	return &c, nil
}

func (c *Config) Validate() error {
	if c.Role == "" {
		return errors.New("need a slurm role (slurmctld, slurmd, slurmdbd or slurmrestd)")
	}
	if c.ConfDir == "" {
		return errors.New("need a configuration directory")
	}
	if c.MungeKeyPath == "" {
		return errors.New("need a munge key path")
	}
	return nil
}

// Paths assembles the path set components work against.
func (c *Config) Paths() slurm.Paths {
	return slurm.Paths{
		ConfDir:      c.ConfDir,
		SpoolDir:     c.SpoolDir,
		StateDir:     c.StateDir,
		LogDir:       c.LogDir,
		PidDir:       c.PidDir,
		PluginDir:    c.PluginDir,
		PlugstackDir: c.PlugstackDir,
		MungeKeyPath: c.MungeKeyPath,
		MungeSocket:  c.MungeSocket,
		MailProg:     c.MailProg,
	}
}

func (c *Config) String() string {
	var result string
	result += fmt.Sprintf("Role: %v\n", c.Role)
	result += fmt.Sprintf("Debug mode: %v\n", c.Debug)
	result += fmt.Sprintf("Show Diffs: %v\n", c.Diffs)
	result += fmt.Sprintf("Service Timeout: %v\n", c.Timeout)
	result += fmt.Sprintf("Hostname: %v\n", c.Hostname)
	result += fmt.Sprintf("OS: %v\n", c.OS)
	result += fmt.Sprintf("Conf Dir: %v\n", c.ConfDir)
	result += fmt.Sprintf("Spool Dir: %v\n", c.SpoolDir)
	result += fmt.Sprintf("State Dir: %v\n", c.StateDir)
	result += fmt.Sprintf("Munge Key: %v\n", c.MungeKeyPath)
	result += fmt.Sprintf("Install Prefix: %v\n", c.InstallPrefix)
	result += fmt.Sprintf("Slurm User: %v:%v\n", c.SlurmUser, c.SlurmGroup)
	result += fmt.Sprintf("Munge User: %v:%v\n", c.MungeUser, c.MungeGroup)
	return result
}
