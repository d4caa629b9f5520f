// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = strings.Repeat("ab", 32)

func TestArtifactRootLifecycle(t *testing.T) {
	root, err := NewArtifactRoot(t.TempDir())
	require.NoError(t, err)

	dir, err := root.CreateSessionDir(testID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root.Dir(), testID), dir)

	_, err = root.CreateSessionDir(testID)
	assert.Error(t, err, "ids are never reused")

	path := filepath.Join(dir, "artifact.mp4")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	f, info, err := root.OpenArtifact(testID, path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())
	require.NoError(t, f.Close())

	entries, err := root.ListSessionDirs()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testID, entries[0].ID)

	require.NoError(t, root.RemoveSessionDir(testID))
	require.NoError(t, root.RemoveSessionDir(testID))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestArtifactRootRejectsUnsafeIDs(t *testing.T) {
	root, err := NewArtifactRoot(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../x", "ABC", strings.Repeat("a", 63)} {
		_, err := root.SessionDir(id)
		assert.ErrorIs(t, err, ErrUnsafeSessionID, id)
	}
}

func TestOpenArtifactConfined(t *testing.T) {
	base := t.TempDir()
	root, err := NewArtifactRoot(base)
	require.NoError(t, err)
	dir, err := root.CreateSessionDir(testID)
	require.NoError(t, err)

	outside := filepath.Join(base, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	_, _, err = root.OpenArtifact(testID, outside)
	assert.Error(t, err)

	link := filepath.Join(dir, "artifact.mp4")
	require.NoError(t, os.Symlink(outside, link))
	_, _, err = root.OpenArtifact(testID, link)
	assert.Error(t, err, "symlink escaping the session dir")

	_, _, err = root.OpenArtifact(testID, dir)
	assert.Error(t, err, "directories are not artifacts")
}

func TestListSessionDirsSkipsForeignEntries(t *testing.T) {
	root, err := NewArtifactRoot(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(root.Dir(), "not-a-session"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root.Dir(), testID), nil, 0o600))

	entries, err := root.ListSessionDirs()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
