package testing

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/dchen22/vsfs"
	c "github.com/dchen22/vsfs/file_systems/common"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// MemoryImage is a resizable in-memory disk image. It implements
// [io.ReadWriteSeeker], [c.Truncator], and [io.Closer], so it can stand in for
// an image file anywhere a stream is accepted.
//
//   - Writes past the current end of the image fail; call Truncate first.
//   - Truncate keeps existing bytes up to the new size and zero-fills the rest.
type MemoryImage struct {
	data   []byte
	stream io.ReadWriteSeeker
	Closed bool
	Syncs  int
}

// NewMemoryImage creates an image whose initial contents are a copy of
// `initial`. Pass nil for an empty image.
func NewMemoryImage(initial []byte) *MemoryImage {
	data := make([]byte, len(initial))
	copy(data, initial)
	return &MemoryImage{
		data:   data,
		stream: bytesextra.NewReadWriteSeeker(data),
	}
}

func (image *MemoryImage) Read(buffer []byte) (int, error) {
	return image.stream.Read(buffer)
}

func (image *MemoryImage) Write(buffer []byte) (int, error) {
	return image.stream.Write(buffer)
}

func (image *MemoryImage) Seek(offset int64, whence int) (int64, error) {
	return image.stream.Seek(offset, whence)
}

func (image *MemoryImage) Truncate(size int64) error {
	if size < 0 {
		return vsfs.ErrInvalidArgument.WithMessage("negative size")
	}

	position, err := image.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	newData := make([]byte, size)
	copy(newData, image.data)
	image.data = newData
	image.stream = bytesextra.NewReadWriteSeeker(newData)

	if position > size {
		position = size
	}
	_, err = image.stream.Seek(position, io.SeekStart)
	return err
}

func (image *MemoryImage) Sync() error {
	image.Syncs++
	return nil
}

func (image *MemoryImage) Close() error {
	image.Closed = true
	return nil
}

// Bytes returns the current contents of the image. The slice is invalidated by
// the next call to Truncate.
func (image *MemoryImage) Bytes() []byte {
	return image.data
}

// CreateRandomImage creates a buffer with the given number of blocks and bytes
// per block, filled with random bytes. It is guaranteed to either return a
// valid slice or fail the test and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// NewMemoryDevice wraps `image` in a [c.StreamDevice]. It fails the test if the
// device can't be created.
func NewMemoryDevice(t *testing.T, image *MemoryImage, bytesPerBlock uint) *c.StreamDevice {
	device, err := c.NewStreamDevice(image, bytesPerBlock)
	require.NoError(t, err, "failed to wrap in-memory image as a block device")
	return device
}
