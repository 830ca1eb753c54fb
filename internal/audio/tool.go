package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Tool concatenates clips into a mono track and interleaves two mono tracks
// into a stereo file.
type Tool interface {
	Name() string
	Concat(ctx context.Context, inputs []string, output string) error
	Merge(ctx context.Context, left, right, output string) error
}

// ToolError carries the diagnostics of a failed external command.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// ParseCommand splits a configured command line into argv.
func ParseCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command empty")
	}
	return args, nil
}

// Run executes argv, failing with a ToolError on a non-zero exit.
func Run(ctx context.Context, argv []string) ([]byte, error) {
	return RunInput(ctx, argv, nil)
}

// RunInput is Run with stdin fed from input.
func RunInput(ctx context.Context, argv []string, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, CommandError(argv, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// CommandError wraps the failure of a finished command as a ToolError.
func CommandError(argv []string, stderr string, err error) error {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ToolError{Tool: argv[0], Args: argv[1:], ExitCode: code, Stderr: stderr, Err: err}
}

// Play hands path to a playback command such as "play".
func Play(ctx context.Context, command, path string) error {
	argv, err := ParseCommand(command)
	if err != nil {
		return err
	}
	_, err = Run(ctx, append(argv, path))
	return err
}
