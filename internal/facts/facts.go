// Package facts collects the host information the configuration step
// feeds back to the charm: short hostname, OS release, and the node's
// inventory line.
package facts

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

type HostFacts struct {
	Hostname     string
	OS           string
	OSVersion    string
	CPUs         int
	RealMemoryMB uint64
}

func NewHostFacts() (*HostFacts, error) {
	return newHostFacts("/etc/os-release", "/proc/meminfo")
}

func newHostFacts(osReleasePath, meminfoPath string) (*HostFacts, error) {
	var f HostFacts

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("error reading hostname: %w", err)
	}
	// slurm wants the short name
	f.Hostname = strings.Split(hostname, ".")[0]

	release, err := ini.Load(osReleasePath)
	if err != nil {
		return nil, fmt.Errorf("error reading os-release: %w", err)
	}
	f.OS = release.Section("").Key("ID").String()
	f.OSVersion = release.Section("").Key("VERSION_ID").String()

	f.CPUs = runtime.NumCPU()
	f.RealMemoryMB, err = readMemTotal(meminfoPath)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Inventory returns the node's slurm.conf inventory line.
func (f *HostFacts) Inventory() string {
	return fmt.Sprintf("NodeName=%v CPUs=%v RealMemory=%v", f.Hostname, f.CPUs, f.RealMemoryMB)
}

func readMemTotal(meminfoPath string) (uint64, error) {
	file, err := os.Open(meminfoPath)
	if err != nil {
		return 0, fmt.Errorf("error reading meminfo: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("malformed MemTotal line: %w", err)
			}
			return kb / 1024, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no MemTotal in %v", meminfoPath)
}
