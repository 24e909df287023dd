// Package slurm holds the domain model shared by the ops manager: the
// daemon roles we can configure, their well-known ports and units, and the
// typed configuration context that drives template rendering.
package slurm

import (
	"fmt"
)

// Role is the slurm daemon this host runs. Decided once at startup.
type Role string

const (
	RoleSlurmctld  Role = "slurmctld"
	RoleSlurmd     Role = "slurmd"
	RoleSlurmdbd   Role = "slurmdbd"
	RoleSlurmrestd Role = "slurmrestd"
)

var portMap = map[Role]string{
	RoleSlurmctld:  "6817",
	RoleSlurmd:     "6818",
	RoleSlurmdbd:   "6819",
	RoleSlurmrestd: "6820",
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleSlurmctld, RoleSlurmd, RoleSlurmdbd, RoleSlurmrestd:
		return r, nil
	}
	return "", fmt.Errorf("slurm component %v not supported", s)
}

func (r Role) Port() string {
	return portMap[r]
}

// Unit returns the systemd unit for the role's daemon.
func (r Role) Unit() string {
	return fmt.Sprintf("%v.service", string(r))
}

// ConfFile returns the file name of the role's main configuration document.
// Everything except slurmdbd shares slurm.conf.
func (r Role) ConfFile() string {
	if r == RoleSlurmdbd {
		return "slurmdbd.conf"
	}
	return "slurm.conf"
}

// TemplateName returns the renderer identifier for the role's main config.
func (r Role) TemplateName() string {
	return r.ConfFile()
}

func (r Role) String() string {
	return string(r)
}
