package audio

import (
	"context"
	"fmt"
)

type soxTool struct {
	argv []string
}

// NewSox returns a Tool backed by the sox command line utility. command may
// carry extra global options, e.g. "sox -V1".
func NewSox(command string) (Tool, error) {
	argv, err := ParseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("sox: %w", err)
	}
	return &soxTool{argv: argv}, nil
}

func (s *soxTool) Name() string { return "sox" }

func (s *soxTool) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}
	args := append(append([]string{}, s.argv...), inputs...)
	_, err := Run(ctx, append(args, output))
	return err
}

func (s *soxTool) Merge(ctx context.Context, left, right, output string) error {
	args := append(append([]string{}, s.argv...), "-M", left, right, output)
	_, err := Run(ctx, args)
	return err
}
