package slurm

import "path/filepath"

// Paths collects every host location the ops manager touches. The zero
// value is not useful; start from DefaultPaths and override from config.
type Paths struct {
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
}

func DefaultPaths() Paths {
	return Paths{
		ConfDir:      "/etc/slurm",
		SpoolDir:     "/var/spool/slurmd",
		StateDir:     "/var/spool/slurmctld",
		LogDir:       "/var/log/slurm",
		PidDir:       "/var/run",
		PluginDir:    "/usr/lib/x86_64-linux-gnu/slurm-wlm",
		PlugstackDir: "/etc/slurm/plugstack.d",
		MungeKeyPath: "/etc/munge/munge.key",
		MungeSocket:  "/var/run/munge/munge.socket.2",
		MailProg:     "/usr/bin/mail.mailutils",
	}
}

// ConfPath returns the destination of the role's main configuration file.
func (p Paths) ConfPath(r Role) string {
	return filepath.Join(p.ConfDir, r.ConfFile())
}

func (p Paths) PlugstackConf() string {
	return filepath.Join(p.PlugstackDir, "plugstack.conf")
}

// JWTKeyPath returns where the jwt signing key lives, inside the
// controller state directory so it survives with the rest of slurmctld state.
func (p Paths) JWTKeyPath() string {
	return filepath.Join(p.StateDir, "jwt_hs256.key")
}

func (p Paths) PidFile(r Role) string {
	return filepath.Join(p.PidDir, string(r)+".pid")
}

func (p Paths) LogFile(r Role) string {
	return filepath.Join(p.LogDir, string(r)+".log")
}
