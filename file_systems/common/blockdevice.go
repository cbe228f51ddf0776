package common

import (
	"fmt"
	"io"
	"os"

	"github.com/dchen22/vsfs"
)

// StreamDevice is a [BlockDevice] built on top of a seekable stream, e.g. an
// image file. Resizing requires the stream to implement [Truncator]; syncing
// uses [Syncer] if the stream has it and is a no-op otherwise.
type StreamDevice struct {
	stream        io.ReadWriteSeeker
	bytesPerBlock uint
	size          int64
}

// NewStreamDevice wraps `stream` as a block device. The current size of the
// stream is determined by seeking to its end.
func NewStreamDevice(stream io.ReadWriteSeeker, bytesPerBlock uint) (*StreamDevice, error) {
	if bytesPerBlock == 0 {
		return nil, vsfs.ErrInvalidArgument.WithMessage("block size can't be 0")
	}

	size, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, vsfs.ErrIOFailed.Wrap(err)
	}

	return &StreamDevice{
		stream:        stream,
		bytesPerBlock: bytesPerBlock,
		size:          size,
	}, nil
}

// OpenFileDevice opens the image file at `path` for reading and writing,
// creating it if it doesn't exist.
func OpenFileDevice(path string, bytesPerBlock uint) (*StreamDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, vsfs.ErrIOFailed.Wrap(err)
	}

	device, err := NewStreamDevice(file, bytesPerBlock)
	if err != nil {
		file.Close()
		return nil, err
	}
	return device, nil
}

func (device *StreamDevice) BytesPerBlock() uint {
	return device.bytesPerBlock
}

func (device *StreamDevice) TotalBlocks() uint {
	return uint(device.size / int64(device.bytesPerBlock))
}

func (device *StreamDevice) Size() int64 {
	return device.size
}

// BlockIDToFileOffset converts a block ID into a byte offset into the backing
// I/O stream.
func (device *StreamDevice) BlockIDToFileOffset(block LogicalBlock) (int64, error) {
	if uint(block) >= device.TotalBlocks() {
		return -1,
			vsfs.ErrResultOutOfRange.WithMessage(
				fmt.Sprintf(
					"invalid block ID %d: not in range [0, %d)",
					block,
					device.TotalBlocks()))
	}
	return int64(block) * int64(device.bytesPerBlock), nil
}

// seekToBlock positions the stream pointer at the byte offset where the given
// block starts, after checking that `buffer` is exactly one block.
func (device *StreamDevice) seekToBlock(block LogicalBlock, buffer []byte) error {
	if uint(len(buffer)) != device.bytesPerBlock {
		return vsfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer must be exactly one block (%d B), got %d",
				device.bytesPerBlock,
				len(buffer)))
	}

	offset, err := device.BlockIDToFileOffset(block)
	if err != nil {
		return err
	}
	_, err = device.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

func (device *StreamDevice) ReadBlock(block LogicalBlock, buffer []byte) error {
	err := device.seekToBlock(block, buffer)
	if err != nil {
		return err
	}

	_, err = io.ReadFull(device.stream, buffer)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

func (device *StreamDevice) WriteBlock(block LogicalBlock, buffer []byte) error {
	err := device.seekToBlock(block, buffer)
	if err != nil {
		return err
	}

	_, err = device.stream.Write(buffer)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// Resize truncates or extends the stream to exactly `sizeBytes` bytes. Streams
// that can't be truncated fail with [vsfs.ErrNotSupported].
func (device *StreamDevice) Resize(sizeBytes int64) error {
	if sizeBytes < 0 {
		return vsfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("can't resize to a negative size: %d", sizeBytes))
	}

	truncator, ok := device.stream.(Truncator)
	if !ok {
		return vsfs.ErrNotSupported.WithMessage("stream can't be resized")
	}

	err := truncator.Truncate(sizeBytes)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	device.size = sizeBytes
	return nil
}

func (device *StreamDevice) Sync() error {
	syncer, ok := device.stream.(Syncer)
	if !ok {
		return nil
	}

	err := syncer.Sync()
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

func (device *StreamDevice) Close() error {
	closer, ok := device.stream.(io.Closer)
	if !ok {
		return nil
	}

	err := closer.Close()
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}
