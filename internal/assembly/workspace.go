package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Workspace owns the files of a single run. Every intermediate path it hands
// out is removed by Release; the stereo artifact survives unless the run failed.
type Workspace struct {
	RunID string

	workDir   string
	outputDir string
	ext       string
	logger    *slog.Logger
	verbose   bool

	mu            sync.Mutex
	intermediates []string
	artifact      string
}

// NewWorkspace creates workDir and outputDir if needed and draws a run id.
func NewWorkspace(workDir, outputDir, ext string, logger *slog.Logger, verbose bool) (*Workspace, error) {
	if outputDir == "" {
		outputDir = "."
	}
	for _, dir := range []string{workDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Workspace{
		RunID:     uuid.NewString(),
		workDir:   workDir,
		outputDir: outputDir,
		ext:       ext,
		logger:    logger,
		verbose:   verbose,
	}, nil
}

func (w *Workspace) track(path string) string {
	w.mu.Lock()
	w.intermediates = append(w.intermediates, path)
	w.mu.Unlock()
	return path
}

// SpeechPath is where the clip for turn idx is written.
func (w *Workspace) SpeechPath(idx int) string {
	return w.track(filepath.Join(w.workDir, fmt.Sprintf("speech_%s_%d.wav", w.RunID, idx)))
}

// SilencePath is where the silence for turn idx is written.
func (w *Workspace) SilencePath(idx int) string {
	return w.track(filepath.Join(w.workDir, fmt.Sprintf("silence_%s_%d.wav", w.RunID, idx)))
}

// ChannelPath is where channel track n (1 or 2) is concatenated.
func (w *Workspace) ChannelPath(n int) string {
	return w.track(filepath.Join(w.workDir, fmt.Sprintf("channel_%s_%d.%s", w.RunID, n, w.ext)))
}

// ArtifactPath names the stereo output for language.
func (w *Workspace) ArtifactPath(language string) string {
	path := filepath.Join(w.outputDir, fmt.Sprintf("stereo-%s_%s.%s", w.RunID, language, w.ext))
	w.mu.Lock()
	w.artifact = path
	w.mu.Unlock()
	return path
}

// Release deletes every intermediate file and, when failed is set, the stereo
// artifact. Files that were never created are ignored; other removal errors
// are joined.
func (w *Workspace) Release(failed bool) error {
	w.mu.Lock()
	paths := append([]string(nil), w.intermediates...)
	if failed && w.artifact != "" {
		paths = append(paths, w.artifact)
	}
	w.intermediates = nil
	w.mu.Unlock()

	level := slog.LevelDebug
	if w.verbose {
		level = slog.LevelInfo
	}
	var errs []error
	for _, path := range paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			w.logger.Log(context.Background(), level, "removed file", slog.String("path", path))
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
