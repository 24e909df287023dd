package slurm

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"gopkg.in/yaml.v3"
)

// Node is one compute-node descriptor. Inventory is the literal slurm.conf
// line for the node ("NodeName=n1 CPUs=4 ...").
type Node struct {
	Inventory string `yaml:"inventory"`
}

// Partition describes one scheduling partition.
type Partition struct {
	Hosts   []string `yaml:"hosts"`
	Default bool     `yaml:"default"`
}

// PartitionEntry is a named partition as handed to the template.
type PartitionEntry struct {
	Name string
	Partition
}

// PartitionMap is an insertion-ordered partition name -> Partition mapping.
// Go maps don't keep order and partition output order is part of the
// rendered document, so callers add partitions in the order they want them
// emitted.
type PartitionMap struct {
	m *linkedhashmap.Map
}

func NewPartitionMap() *PartitionMap {
	return &PartitionMap{m: linkedhashmap.New()}
}

func (p *PartitionMap) Set(name string, part Partition) {
	if p.m == nil {
		p.m = linkedhashmap.New()
	}
	p.m.Put(name, part)
}

func (p *PartitionMap) Get(name string) (Partition, bool) {
	if p == nil || p.m == nil {
		return Partition{}, false
	}
	raw, ok := p.m.Get(name)
	if !ok {
		return Partition{}, false
	}
	return raw.(Partition), true
}

func (p *PartitionMap) Len() int {
	if p == nil || p.m == nil {
		return 0
	}
	return p.m.Size()
}

// Entries returns the partitions in insertion order.
func (p *PartitionMap) Entries() []PartitionEntry {
	if p == nil || p.m == nil {
		return nil
	}
	entries := make([]PartitionEntry, 0, p.m.Size())
	for _, k := range p.m.Keys() {
		raw, _ := p.m.Get(k)
		entries = append(entries, PartitionEntry{
			Name:      k.(string),
			Partition: raw.(Partition),
		})
	}
	return entries
}

// UnmarshalYAML keeps the document's key order, which encoding into a plain
// map would lose.
func (p *PartitionMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("partitions: expected a mapping, got yaml kind %v", value.Kind)
	}
	p.m = linkedhashmap.New()
	for i := 0; i < len(value.Content); i += 2 {
		var part Partition
		if err := value.Content[i+1].Decode(&part); err != nil {
			return fmt.Errorf("partition %v: %w", value.Content[i].Value, err)
		}
		p.m.Put(value.Content[i].Value, part)
	}
	return nil
}

// ConfigContext is the key-value input driving template rendering. The
// caller (normally the charm) supplies it whole; empty fields render as
// empty substitutions. MungeKey is the reserved secret slot and is never
// referenced by the config templates themselves.
type ConfigContext struct {
	ClusterName          string `yaml:"cluster_name"`
	ActiveControllerHost string `yaml:"active_controller_host"`
	ActiveControllerAddr string `yaml:"active_controller_addr"`
	BackupControllerHost string `yaml:"backup_controller_host"`
	BackupControllerAddr string `yaml:"backup_controller_addr"`

	MungeSocket string `yaml:"munge_socket"`
	MailProg    string `yaml:"mail_prog"`
	SlurmUser   string `yaml:"slurm_user"`

	SlurmctldPidFile string `yaml:"slurmctld_pid_file"`
	SlurmdPidFile    string `yaml:"slurmd_pid_file"`
	SlurmdbdPidFile  string `yaml:"slurmdbd_pid_file"`
	SlurmctldLogFile string `yaml:"slurmctld_log_file"`
	SlurmdLogFile    string `yaml:"slurmd_log_file"`
	SlurmdbdLogFile  string `yaml:"slurmdbd_log_file"`

	SpoolDir      string `yaml:"spool_dir"`
	StateDir      string `yaml:"state_dir"`
	PluginDir     string `yaml:"plugin_dir"`
	PlugstackConf string `yaml:"plugstack_conf"`
	JWTKeyFile    string `yaml:"jwt_key_file"`

	SlurmctldParameters []string `yaml:"slurmctld_parameters"`

	SlurmdbdHost string `yaml:"slurmdbd_host"`
	SlurmdbdPort string `yaml:"slurmdbd_port"`
	StorageHost  string `yaml:"storage_host"`
	StoragePort  string `yaml:"storage_port"`
	StorageUser  string `yaml:"storage_user"`
	StoragePass  string `yaml:"storage_pass"`
	StorageLoc   string `yaml:"storage_loc"`

	Nodes      []Node        `yaml:"nodes"`
	Partitions *PartitionMap `yaml:"partitions"`

	// MungeKey holds the base64-encoded cluster authentication key.
	MungeKey string `yaml:"munge_key"`
}
