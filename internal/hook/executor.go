package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Executor runs a hook with a time limit.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor with the given timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Run starts the hook in its own directory with payload marshalled to stdin.
// The hook succeeds when it exits zero and, if it printed anything, the output
// is a Response with success set.
func (e *Executor) Run(ctx context.Context, h *Hook, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	input, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.Executable)
	cmd.Dir = h.Path
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("hook %s timed out after %s", h.Manifest.Name, e.timeout)
	}
	if err != nil {
		if s := stderr.String(); s != "" {
			return fmt.Errorf("hook %s failed: %w, stderr: %s", h.Manifest.Name, err, s)
		}
		return fmt.Errorf("hook %s failed: %w", h.Manifest.Name, err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil
	}
	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return fmt.Errorf("hook %s: invalid response: %w, stdout: %s", h.Manifest.Name, err, out)
	}
	if !resp.Success {
		return fmt.Errorf("hook %s reported failure: %s", h.Manifest.Name, resp.Error)
	}
	return nil
}
