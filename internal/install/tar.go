package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mholt/archiver/v4"
)

// TarInstaller unpacks a slurm tarball under Prefix.
type TarInstaller struct {
	Prefix string
}

func (t *TarInstaller) Install(ctx context.Context, artifact string) error {
	f, err := os.Open(artifact)
	if err != nil {
		return err
	}
	defer f.Close()

	format, input, err := archiver.Identify(filepath.Base(artifact), f)
	if err != nil {
		return fmt.Errorf("cannot identify archive %v: %w", artifact, err)
	}
	extractor, ok := format.(archiver.Extractor)
	if !ok {
		return fmt.Errorf("%v is not an extractable archive", artifact)
	}

	log.Info("extracting slurm artifact", "artifact", artifact, "prefix", t.Prefix)
	return extractor.Extract(ctx, input, nil, func(ctx context.Context, af archiver.File) error {
		target, err := secureJoin(t.Prefix, af.NameInArchive)
		if err != nil {
			return err
		}
		switch {
		case af.IsDir():
			return os.MkdirAll(target, af.Mode().Perm())
		case af.LinkTarget != "":
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			return os.Symlink(af.LinkTarget, target)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			src, err := af.Open()
			if err != nil {
				return err
			}
			defer src.Close()
			dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, af.Mode().Perm())
			if err != nil {
				return err
			}
			defer dst.Close()
			_, err = io.Copy(dst, src)
			return err
		}
	})
}

// secureJoin keeps archive members from escaping the extraction root.
func secureJoin(prefix, name string) (string, error) {
	target := filepath.Join(prefix, name)
	if !strings.HasPrefix(target, filepath.Clean(prefix)+string(os.PathSeparator)) && target != filepath.Clean(prefix) {
		return "", fmt.Errorf("archive member %v escapes extraction root", name)
	}
	return target, nil
}
