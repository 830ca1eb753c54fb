package assembly

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestWorkspaceNaming(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(root, "tmp"), filepath.Join(root, "out"), "mp3", discard(), false)
	require.NoError(t, err)

	assert.Equal(t, "speech_"+ws.RunID+"_0.wav", filepath.Base(ws.SpeechPath(0)))
	assert.Equal(t, "silence_"+ws.RunID+"_3.wav", filepath.Base(ws.SilencePath(3)))
	assert.Equal(t, "channel_"+ws.RunID+"_2.mp3", filepath.Base(ws.ChannelPath(2)))
	artifact := ws.ArtifactPath("en-us")
	assert.True(t, strings.HasPrefix(artifact, filepath.Join(root, "out")))
	assert.Equal(t, "stereo-"+ws.RunID+"_en-us.mp3", filepath.Base(artifact))
}

func TestWorkspaceReleaseKeepsArtifact(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(root, "tmp"), root, "wav", discard(), true)
	require.NoError(t, err)

	speech := ws.SpeechPath(0)
	touch(t, speech)
	_ = ws.SilencePath(0) // never written
	artifact := ws.ArtifactPath("en-us")
	touch(t, artifact)

	require.NoError(t, ws.Release(false))
	assert.NoFileExists(t, speech)
	assert.FileExists(t, artifact)
}

func TestWorkspaceReleaseOnFailureRemovesArtifact(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(root, "tmp"), root, "wav", discard(), false)
	require.NoError(t, err)

	channel := ws.ChannelPath(1)
	touch(t, channel)
	artifact := ws.ArtifactPath("en-us")
	touch(t, artifact)

	require.NoError(t, ws.Release(true))
	assert.NoFileExists(t, channel)
	assert.NoFileExists(t, artifact)
}

func TestWorkspaceReleaseReportsErrors(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(root, "tmp"), root, "wav", discard(), false)
	require.NoError(t, err)

	// A non-empty directory in place of a clip cannot be removed with os.Remove.
	speech := ws.SpeechPath(0)
	require.NoError(t, os.MkdirAll(filepath.Join(speech, "child"), 0o755))
	silence := ws.SilencePath(0)
	touch(t, silence)

	err = ws.Release(false)
	require.Error(t, err)
	assert.NoFileExists(t, silence)
}
