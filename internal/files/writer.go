// Package files installs rendered documents on the host. Writes are
// atomic: content lands in a temp file in the target directory and is
// renamed into place, so a reader never observes a partial document.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	ErrPermission = errors.New("permission denied")
	ErrPath       = errors.New("invalid path")
)

// Write replaces path with content, owned by owner:group with the given
// mode. The parent directory must already exist.
func Write(path string, content []byte, owner, group string, mode os.FileMode) error {
	dir := filepath.Dir(path)
	fi, err := os.Stat(dir)
	if err != nil {
		return classify(err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %v is not a directory", ErrPath, dir)
	}
	uid, gid, err := lookupIDs(owner, group)
	if err != nil {
		return err
	}

	if old, err := os.ReadFile(path); err == nil {
		log.Debug("replacing file", "path", path, "drift", len(Diff(string(old), string(content))))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return classify(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return classify(err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return classify(err)
	}
	if err := tmp.Chown(uid, gid); err != nil {
		tmp.Close()
		return classify(err)
	}
	if err := tmp.Close(); err != nil {
		return classify(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return classify(err)
	}
	log.Debug("wrote file", "path", path, "bytes", len(content), "mode", mode)
	return nil
}

// Diff returns a readable diff between two document versions.
func Diff(old, updated string) string {
	dmp := diffmatchpatch.New()
	return dmp.DiffPrettyText(dmp.DiffMain(old, updated, false))
}

func lookupIDs(owner, group string) (int, int, error) {
	u, err := user.Lookup(owner)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: unknown owner %v", ErrPermission, owner)
	}
	g, err := user.LookupGroup(group)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: unknown group %v", ErrPermission, group)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("non-numeric uid for %v: %w", owner, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("non-numeric gid for %v: %w", group, err)
	}
	return uid, gid, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermission, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrPath, err)
	}
	return err
}
