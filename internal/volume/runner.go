package volume

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tis24dev/drivesave/internal/logging"
)

// CommandRunner executes the volume control command.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSCommandRunner runs commands with os/exec.
type OSCommandRunner struct{}

// Run executes name and returns its combined output.
func (OSCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// runScript writes directives to a temporary file, invokes the configured
// command with the file substituted for the placeholder and removes the file.
func (c *Controller) runScript(ctx context.Context, step, directives string) (err error) {
	done := logging.DebugStart(c.logger, "volume "+step, "")
	defer func() { done(err) }()

	path := filepath.Join(c.opts.ScriptDir, fmt.Sprintf("diskpart_%s.txt", uuid.NewString()))
	if err := os.WriteFile(path, []byte(directives), 0o600); err != nil {
		return fmt.Errorf("%s: write directive script: %w", step, err)
	}
	defer os.Remove(path)

	args := make([]string, len(c.opts.Args))
	for i, a := range c.opts.Args {
		args[i] = strings.ReplaceAll(a, ScriptPlaceholder, path)
	}

	c.logger.Debug("Volume %s: %s %s", step, c.opts.Command, strings.Join(args, " "))
	out, runErr := c.runner.Run(ctx, c.opts.Command, args...)
	if runErr != nil {
		if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
			return fmt.Errorf("%s: %w: %s", step, runErr, trimmed)
		}
		return fmt.Errorf("%s: %w", step, runErr)
	}
	return nil
}
