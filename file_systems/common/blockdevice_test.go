package common_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dchen22/vsfs"
	c "github.com/dchen22/vsfs/file_systems/common"
	dt "github.com/dchen22/vsfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func TestStreamDevice__Geometry(t *testing.T) {
	// 10 whole blocks plus a partial one that doesn't count.
	image := dt.NewMemoryImage(make([]byte, 512*10+100))
	device := dt.NewMemoryDevice(t, image, 512)

	assert.EqualValues(t, 512, device.BytesPerBlock())
	assert.EqualValues(t, 10, device.TotalBlocks())
	assert.EqualValues(t, 512*10+100, device.Size())
}

func TestStreamDevice__ReadWriteRoundTrip(t *testing.T) {
	rawBlocks := dt.CreateRandomImage(128, 16, t)
	image := dt.NewMemoryImage(rawBlocks)
	device := dt.NewMemoryDevice(t, image, 128)

	buffer := make([]byte, 128)
	require.NoError(t, device.ReadBlock(7, buffer))
	assert.Equal(t, rawBlocks[7*128:8*128], buffer)

	newData := bytes.Repeat([]byte{0x5a}, 128)
	require.NoError(t, device.WriteBlock(15, newData))
	assert.Equal(t, newData, image.Bytes()[15*128:])
}

func TestStreamDevice__BoundsChecks(t *testing.T) {
	device := dt.NewMemoryDevice(t, dt.NewMemoryImage(make([]byte, 4*512)), 512)

	err := device.ReadBlock(4, make([]byte, 512))
	assert.ErrorIs(t, err, vsfs.ErrResultOutOfRange)

	err = device.WriteBlock(0, make([]byte, 511))
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)
}

func TestStreamDevice__Resize(t *testing.T) {
	image := dt.NewMemoryImage(nil)
	device := dt.NewMemoryDevice(t, image, 512)
	assert.EqualValues(t, 0, device.TotalBlocks())

	require.NoError(t, device.Resize(3*512))
	assert.EqualValues(t, 3, device.TotalBlocks())
	assert.Len(t, image.Bytes(), 3*512)
	require.NoError(t, device.WriteBlock(2, bytes.Repeat([]byte{1}, 512)))

	err := device.Resize(-1)
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)
}

func TestStreamDevice__ResizeUnsupported(t *testing.T) {
	// Embedding the interface hides every method but Read, Write, and Seek.
	stream := struct{ io.ReadWriteSeeker }{bytesextra.NewReadWriteSeeker(make([]byte, 1024))}
	device, err := c.NewStreamDevice(stream, 512)
	require.NoError(t, err)

	err = device.Resize(2048)
	assert.ErrorIs(t, err, vsfs.ErrNotSupported)
	// Streams without Sync or Close treat those as no-ops.
	assert.NoError(t, device.Sync())
	assert.NoError(t, device.Close())
}

func TestStreamDevice__SyncAndClose(t *testing.T) {
	image := dt.NewMemoryImage(make([]byte, 512))
	device := dt.NewMemoryDevice(t, image, 512)

	require.NoError(t, device.Sync())
	require.NoError(t, device.Close())
	assert.Equal(t, 1, image.Syncs)
	assert.True(t, image.Closed)
}

func TestOpenFileDevice__CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	device, err := c.OpenFileDevice(path, 4096)
	require.NoError(t, err)
	assert.EqualValues(t, 0, device.Size())

	require.NoError(t, device.Resize(4096*2))
	require.NoError(t, device.WriteBlock(1, bytes.Repeat([]byte{0xee}, 4096)))
	require.NoError(t, device.Sync())
	require.NoError(t, device.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, contents, 4096*2)
	assert.Equal(t, make([]byte, 4096), contents[:4096])
	assert.Equal(t, bytes.Repeat([]byte{0xee}, 4096), contents[4096:])
}

func TestOpenFileDevice__BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "disk.img")
	_, err := c.OpenFileDevice(path, 4096)
	assert.ErrorIs(t, err, vsfs.ErrIOFailed)
}
