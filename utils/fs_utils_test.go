package utils

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAndDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	require.NoError(t, WriteFile(path, []byte("{}")))

	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir), "directories do not qualify as files")
	assert.True(t, DirectoryExists(dir))
	assert.False(t, DirectoryExists(path), "files do not qualify as directories")
	assert.False(t, FileExists(filepath.Join(dir, "missing.json")))
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "artifact.json")
	require.NoError(t, WriteFile(path, []byte("{}")))
	assert.True(t, FileExists(path))
}

func TestMakeDirectoryRejectsFileCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collision")
	require.NoError(t, WriteFile(path, []byte("x")))

	err := MakeDirectory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a file exists with the same name")

	// Creating an existing directory is not an error.
	assert.NoError(t, MakeDirectory(dir))
}

func TestCreateFile(t *testing.T) {
	dir := t.TempDir()
	file, err := CreateFile(filepath.Join(dir, "sub"), "out.zip")
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.True(t, FileExists(filepath.Join(dir, "sub", "out.zip")))
}

func TestRunCommandWithOutputAndError(t *testing.T) {
	stdout, _, combined, err := RunCommandWithOutputAndError(exec.Command("echo", "hello"))
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "hello")
	assert.Contains(t, string(combined), "hello")

	_, _, _, err = RunCommandWithOutputAndError(exec.Command("false"))
	assert.Error(t, err)
}
