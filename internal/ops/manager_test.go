package ops

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/slurm"
)

type fakeReconciler struct {
	calls       []string
	restartErrs map[string]error
}

func (f *fakeReconciler) Restart(_ context.Context, unit string) error {
	f.calls = append(f.calls, "restart "+unit)
	return f.restartErrs[unit]
}

func (f *fakeReconciler) Start(_ context.Context, unit string) error {
	f.calls = append(f.calls, "start "+unit)
	return nil
}

func (f *fakeReconciler) Stop(_ context.Context, unit string) error {
	f.calls = append(f.calls, "stop "+unit)
	return nil
}

func (f *fakeReconciler) Enable(_ context.Context, unit string) error {
	f.calls = append(f.calls, "enable "+unit)
	return nil
}

func (f *fakeReconciler) DaemonReload(_ context.Context) error {
	f.calls = append(f.calls, "daemon-reload")
	return nil
}

func testConfig(t *testing.T, role slurm.Role) *Config {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	g, err := user.LookupGroupId(u.Gid)
	require.NoError(t, err)

	root := t.TempDir()
	confDir := filepath.Join(root, "etc", "slurm")
	mungeDir := filepath.Join(root, "etc", "munge")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.MkdirAll(mungeDir, 0o700))

	return &Config{
		Role:         role,
		OS:           "ubuntu",
		ConfDir:      confDir,
		SpoolDir:     filepath.Join(root, "spool"),
		StateDir:     filepath.Join(root, "state"),
		LogDir:       filepath.Join(root, "log"),
		PidDir:       filepath.Join(root, "run"),
		PluginDir:    filepath.Join(root, "plugins"),
		PlugstackDir: filepath.Join(confDir, "plugstack.d"),
		MungeKeyPath: filepath.Join(mungeDir, "munge.key"),
		MungeSocket:  "/var/run/munge/munge.socket.2",
		MailProg:     "/usr/bin/mail",

		InstallPrefix:    filepath.Join(root, "prefix"),
		SystemdDropInDir: filepath.Join(root, "systemd"),
		LogrotateDir:     filepath.Join(root, "logrotate.d"),

		SlurmUser:  u.Username,
		SlurmGroup: g.Name,
		MungeUser:  u.Username,
		MungeGroup: g.Name,
	}
}

func testContext() slurm.ConfigContext {
	partitions := slurm.NewPartitionMap()
	partitions.Set("batch", slurm.Partition{Hosts: []string{"n1"}, Default: true})
	return slurm.ConfigContext{
		ClusterName:          "camelot",
		ActiveControllerHost: "ctl1",
		Nodes:                []slurm.Node{{Inventory: "NodeName=n1 CPUs=4"}},
		Partitions:           partitions,
		MungeKey:             base64.StdEncoding.EncodeToString([]byte("0123456789abcdef")),
	}
}

func TestApply(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	fake := &fakeReconciler{}
	m := NewManager(c, fake)

	require.NoError(t, m.Apply(context.Background(), testContext()))

	// munge must be serving its key before the controller restarts
	assert.Equal(t, []string{"restart munge.service", "restart slurmctld.service"}, fake.calls)

	key, err := os.ReadFile(c.MungeKeyPath)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", string(key))
	fi, err := os.Stat(c.MungeKeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	conf, err := os.ReadFile(filepath.Join(c.ConfDir, "slurm.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(conf), "ClusterName=camelot\n")
	assert.Contains(t, string(conf), "NodeName=n1 CPUs=4\n")
	assert.Contains(t, string(conf), "PartitionName=batch Nodes=n1 Default=YES State=UP")
	assert.Contains(t, string(conf), "SlurmctldParameters=enable_configless\n")
}

func TestApplyMungeRestartFailureStopsEverything(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	fake := &fakeReconciler{restartErrs: map[string]error{
		MungeUnit: errors.New("unit failed"),
	}}
	m := NewManager(c, fake)

	err := m.Apply(context.Background(), testContext())
	require.Error(t, err)

	assert.Equal(t, []string{"restart munge.service"}, fake.calls)
	assert.NoFileExists(t, filepath.Join(c.ConfDir, "slurm.conf"))
}

func TestApplyMissingMungeKey(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	fake := &fakeReconciler{}
	m := NewManager(c, fake)

	cc := testContext()
	cc.MungeKey = ""
	err := m.Apply(context.Background(), cc)
	require.Error(t, err)

	assert.Empty(t, fake.calls)
	assert.NoFileExists(t, c.MungeKeyPath)
	assert.NoFileExists(t, filepath.Join(c.ConfDir, "slurm.conf"))
}

func TestApplyBadMungeKey(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	fake := &fakeReconciler{}
	m := NewManager(c, fake)

	cc := testContext()
	cc.MungeKey = "not base64!"
	err := m.Apply(context.Background(), cc)
	require.Error(t, err)
	assert.Empty(t, fake.calls)
}

func TestApplyIdempotent(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	fake := &fakeReconciler{}
	m := NewManager(c, fake)
	cc := testContext()

	require.NoError(t, m.Apply(context.Background(), cc))
	first, err := os.ReadFile(filepath.Join(c.ConfDir, "slurm.conf"))
	require.NoError(t, err)

	require.NoError(t, m.Apply(context.Background(), cc))
	second, err := os.ReadFile(filepath.Join(c.ConfDir, "slurm.conf"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{
		"restart munge.service", "restart slurmctld.service",
		"restart munge.service", "restart slurmctld.service",
	}, fake.calls)
}

func TestApplySlurmdbd(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmdbd)
	fake := &fakeReconciler{}
	m := NewManager(c, fake)

	cc := testContext()
	cc.SlurmdbdHost = "db1"
	cc.StorageHost = "mysql1"
	cc.StoragePass = "hunter2"
	require.NoError(t, m.Apply(context.Background(), cc))

	assert.Equal(t, []string{"restart munge.service", "restart slurmdbd.service"}, fake.calls)

	target := filepath.Join(c.ConfDir, "slurmdbd.conf")
	conf, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(conf), "DbdHost=db1\n")
	assert.Contains(t, string(conf), "DbdPort=6819\n")

	// credentials live in this one, keep it private
	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestFillDefaultsKeepsCallerValues(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	m := NewManager(c, &fakeReconciler{})

	cc := slurm.ConfigContext{SlurmUser: "someone", SpoolDir: "/custom/spool"}
	m.fillDefaults(&cc)

	assert.Equal(t, "someone", cc.SlurmUser)
	assert.Equal(t, "/custom/spool", cc.SpoolDir)
	assert.Equal(t, c.MungeSocket, cc.MungeSocket)
	assert.Equal(t, "6819", cc.SlurmdbdPort)
	assert.Equal(t, []string{"enable_configless"}, cc.SlurmctldParameters)
}

func TestFillDefaultsParametersStable(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	m := NewManager(c, &fakeReconciler{})

	cc := slurm.ConfigContext{SlurmctldParameters: []string{"enable_configless", "idle_on_node_suspend"}}
	m.fillDefaults(&cc)
	assert.Equal(t, []string{"enable_configless", "idle_on_node_suspend"}, cc.SlurmctldParameters)

	m.fillDefaults(&cc)
	assert.Equal(t, []string{"enable_configless", "idle_on_node_suspend"}, cc.SlurmctldParameters)
}

func TestGetMungeKeyRoundTrip(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	fake := &fakeReconciler{}
	m := NewManager(c, fake)
	cc := testContext()

	require.NoError(t, m.Apply(context.Background(), cc))
	got, err := m.GetMungeKey()
	require.NoError(t, err)
	assert.Equal(t, cc.MungeKey, got)
}

func TestJWTKey(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	require.NoError(t, os.MkdirAll(c.StateDir, 0o755))
	m := NewManager(c, &fakeReconciler{})

	pemKey, err := m.GenerateJWTKey()
	require.NoError(t, err)
	assert.Contains(t, pemKey, "BEGIN RSA PRIVATE KEY")

	require.NoError(t, m.WriteJWTKey(pemKey))
	target := filepath.Join(c.StateDir, "jwt_hs256.key")
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, pemKey, string(got))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestWriteCgroupConf(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmd)
	m := NewManager(c, &fakeReconciler{})

	content := "CgroupAutomount=yes\nConstrainCores=yes\n"
	require.NoError(t, m.WriteCgroupConf(content))

	got, err := os.ReadFile(filepath.Join(c.ConfDir, "cgroup.conf"))
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestAcctGatherConf(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmd)
	m := NewManager(c, &fakeReconciler{})
	target := filepath.Join(c.ConfDir, "acct_gather.conf")

	// removing before anything was written is fine
	require.NoError(t, m.RemoveAcctGatherConf())

	require.NoError(t, m.WriteAcctGatherConf("EnergyIPMIFrequency=10\n"))
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "EnergyIPMIFrequency=10\n", string(got))

	require.NoError(t, m.RemoveAcctGatherConf())
	assert.NoFileExists(t, target)
}

func TestInstallTarArtifact(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	require.NoError(t, os.MkdirAll(c.InstallPrefix, 0o755))
	require.NoError(t, os.MkdirAll(c.SystemdDropInDir, 0o755))
	require.NoError(t, os.MkdirAll(c.LogrotateDir, 0o755))
	fake := &fakeReconciler{}
	m := NewManager(c, fake)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := "#!/bin/sh\necho sinfo\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "usr/bin/sinfo",
		Mode: 0o755,
		Size: int64(len(content)),
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	artifact := filepath.Join(t.TempDir(), "slurm-23.02.tar")
	require.NoError(t, os.WriteFile(artifact, buf.Bytes(), 0o644))

	require.NoError(t, m.Install(context.Background(), artifact))

	assert.FileExists(t, filepath.Join(c.InstallPrefix, "usr", "bin", "sinfo"))

	override, err := os.ReadFile(filepath.Join(c.SystemdDropInDir, "slurmctld.service.d", "override.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(override), "LimitNOFILE")

	logrotate, err := os.ReadFile(filepath.Join(c.LogrotateDir, "slurm"))
	require.NoError(t, err)
	assert.Contains(t, string(logrotate), "/var/log/slurm/*.log")

	assert.Equal(t, []string{
		"daemon-reload",
		"enable slurmctld.service",
		"stop slurmctld.service",
		"stop munge.service",
	}, fake.calls)
}

func TestInstallUnknownArtifact(t *testing.T) {
	c := testConfig(t, slurm.RoleSlurmctld)
	fake := &fakeReconciler{}
	m := NewManager(c, fake)

	artifact := filepath.Join(t.TempDir(), "slurm.bin")
	require.NoError(t, os.WriteFile(artifact, []byte("not an artifact"), 0o644))

	err := m.Install(context.Background(), artifact)
	require.Error(t, err)
	assert.Empty(t, fake.calls)
}
