package fileutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rohmanhakim/saas-intel/pkg/failure"
	"github.com/rohmanhakim/saas-intel/pkg/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNested(t *testing.T) {
	root := t.TempDir()

	err := fileutil.EnsureDir(root, "a", "b", "c")

	require.NoError(t, err)
	info, statErr := os.Stat(filepath.Join(root, "a", "b", "c"))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestEnsureDir_FailsUnderAFile(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := fileutil.EnsureDir(blocker, "child")

	var fe *fileutil.FileError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fileutil.ErrCausePathError, fe.Cause)
	assert.Equal(t, failure.SeverityFatal, fe.Severity())
}

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	// GIVEN an existing file
	path := filepath.Join(t.TempDir(), "data", "state.json")
	require.NoError(t, fileutil.WriteFileAtomic(path, []byte("old")))

	// WHEN it is rewritten
	require.NoError(t, fileutil.WriteFileAtomic(path, []byte("new")))

	// THEN the new content is in place and no temp file is left behind
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.jsonl")

	require.NoError(t, fileutil.AppendLine(path, []byte(`{"id":"a"}`)))
	require.NoError(t, fileutil.AppendLine(path, []byte(`{"id":"b"}`)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":\"a\"}\n{\"id\":\"b\"}\n", string(got))
	assert.True(t, fileutil.Exists(path))
	assert.False(t, fileutil.Exists(path+".missing"))
}
