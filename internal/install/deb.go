package install

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
)

// DebInstaller hands a .deb artifact to apt so dependencies resolve from
// the configured repositories.
type DebInstaller struct{}

func (d *DebInstaller) Install(ctx context.Context, artifact string) error {
	log.Info("installing slurm package", "artifact", artifact)
	cmd := exec.CommandContext(ctx, "apt-get", "install", "--yes", "--reinstall", artifact)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("apt-get install %v failed: %w: %s", artifact, err, out)
	}
	return nil
}
