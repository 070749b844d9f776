package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// run executes name with args and returns its standard output.
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

// cmdReader is the stdout of a long running command. Closing it terminates
// the command.
type cmdReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (r *cmdReader) Close() error {
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.ReadCloser.Close()
	_ = r.cmd.Wait()
	return nil
}

func startReader(cmd *exec.Cmd) (io.ReadCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	return &cmdReader{ReadCloser: stdout, cmd: cmd}, nil
}
