// Package install puts a supplied slurm artifact onto the host. The
// artifact arrives either as a tarball or as a distro package; which one is
// decided once, up front, and drives the rest of the installation.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v4"
)

// ArtifactKind tags the two installable artifact forms.
type ArtifactKind int

const (
	ArtifactUnknown ArtifactKind = iota
	ArtifactTar
	ArtifactDeb
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactTar:
		return "tar"
	case ArtifactDeb:
		return "deb"
	default:
		return "unknown"
	}
}

type Installer interface {
	Install(ctx context.Context, artifact string) error
}

// DetectArtifact inspects the supplied artifact and resolves its kind.
func DetectArtifact(path string) (ArtifactKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArtifactUnknown, err
	}
	defer f.Close()

	format, _, err := archiver.Identify(filepath.Base(path), f)
	if err == nil && strings.Contains(format.Name(), ".tar") {
		return ArtifactTar, nil
	}
	if err != nil && !errors.Is(err, archiver.ErrNoMatch) {
		return ArtifactUnknown, err
	}
	if filepath.Ext(path) == ".deb" {
		return ArtifactDeb, nil
	}
	return ArtifactUnknown, fmt.Errorf("unrecognized slurm artifact %v", path)
}

// NewInstaller returns the installer for a detected artifact kind. Prefix
// is the extraction root for tar artifacts.
func NewInstaller(kind ArtifactKind, prefix string) (Installer, error) {
	switch kind {
	case ArtifactTar:
		return &TarInstaller{Prefix: prefix}, nil
	case ArtifactDeb:
		return &DebInstaller{}, nil
	default:
		return nil, fmt.Errorf("no installer for artifact kind %v", kind)
	}
}
