package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dchen22/vsfs"
	"github.com/dchen22/vsfs/file_systems/verysimple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	output := &bytes.Buffer{}
	app := newApp()
	app.Writer = output
	app.ErrWriter = output

	err := app.Run(append([]string{"vsfs"}, args...))
	return output.String(), err
}

func TestFormatThenInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	output, err := runApp(t, "format", "--size", "409600", "--max-files", "1000", path)
	require.NoError(t, err)
	assert.Contains(t, output, "100 blocks of 4096 bytes")

	output, err = runApp(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, output, "1 of 1000 in use")
	assert.Contains(t, output, "2 links, 0 bytes, 0 entries")
}

func TestInspect__PNG(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "disk.img")
	mapPath := filepath.Join(dir, "disk.png")

	_, err := runApp(t, "format", "--profile", "vsfs-reference", imagePath)
	require.NoError(t, err)
	_, err = runApp(t, "inspect", "--png", mapPath, imagePath)
	require.NoError(t, err)

	info, err := os.Stat(mapPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFormat__Profile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floppy.img")

	_, err := runApp(t, "format", "--profile", "floppy-1440k", "--populate-root", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1474560, info.Size())

	report, err := verysimple.InspectFile(path, 512)
	require.NoError(t, err)
	assert.Len(t, report.RootEntries, 2)
}

func TestFormat__MissingSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	_, err := runApp(t, "format", "--max-files", "10", path)
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)
}

func TestFormat__NoPath(t *testing.T) {
	_, err := runApp(t, "format", "--size", "409600", "--max-files", "10")
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)
}

func TestFormat__UnknownProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	_, err := runApp(t, "format", "--profile", "nope", path)
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)
}

func TestListProfiles(t *testing.T) {
	output, err := runApp(t, "profiles")
	require.NoError(t, err)
	assert.Contains(t, output, "floppy-1440k")
	assert.Contains(t, output, "vsfs-reference")
}
