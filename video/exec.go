package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

func run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s command failed: %w (stderr: %s)", name, err, stderr.String())
	}
	return stdout.String(), nil
}
