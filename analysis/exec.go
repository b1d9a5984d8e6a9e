package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultToolTimeout bounds a single analyzer invocation. A timeout cancels
// just that invocation, not the surrounding analysis.
const DefaultToolTimeout = 30 * time.Second

// ToolError reports a single analyzer crash, timeout, or unparseable output.
// It is always absorbed by the orchestrator and never propagated.
type ToolError struct {
	Tool AnalyzerKind
	Path string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed on %s: %v", e.Tool, e.Path, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// execResult captures the outcome of one analyzer subprocess.
type execResult struct {
	stdout   []byte
	stderr   []byte
	exitCode int
	timedOut bool
}

// runTool executes an analyzer with a hard timeout, capturing stdout and
// stderr. A non-zero exit is not an error here: several analyzers use it to
// signal findings, so the caller decides what the exit code means.
func runTool(ctx context.Context, timeout time.Duration, name string, args ...string) (execResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := execResult{
		stdout: stdout.Bytes(),
		stderr: stderr.Bytes(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.timedOut = true
		return res, fmt.Errorf("timed out after %s", timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}

	return res, nil
}

// writeAnalysisFile materializes fetched file content in a temp directory so
// subprocess analyzers can read it. The original extension is preserved for
// language detection. The cleanup func removes the directory.
func writeAnalysisFile(path, content string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "codexlens-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	tmpPath := filepath.Join(dir, filepath.Base(path))
	if err := os.WriteFile(tmpPath, []byte(content), 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}

	return tmpPath, cleanup, nil
}
