// Package common contains definitions of fundamental types and functions used
// by the file system implementations: the block device abstraction, the bitmap
// allocator, and small arithmetic helpers.
package common

import "golang.org/x/exp/constraints"

// LogicalBlock is the index of a block from the start of a device.
type LogicalBlock uint

// Truncator is an interface for objects that support a Truncate() method. This
// method must behave just like [os.File.Truncate].
type Truncator interface {
	Truncate(size int64) error
}

// Syncer is implemented by streams that can commit their contents to stable
// storage, like [os.File.Sync].
type Syncer interface {
	Sync() error
}

// BlockDevice is the capability the formatter needs from its backing store. It
// hides whether the image is a file, a real device, or a buffer in memory.
type BlockDevice interface {
	// BytesPerBlock gives the size of a single block, in bytes.
	BytesPerBlock() uint
	// TotalBlocks gives the number of whole blocks on the device. A trailing
	// partial block is not counted.
	TotalBlocks() uint
	// Size gives the size of the device in bytes.
	Size() int64
	// ReadBlock fills `buffer` (exactly one block) from block `block`.
	ReadBlock(block LogicalBlock, buffer []byte) error
	// WriteBlock writes `buffer` (exactly one block) to block `block`.
	WriteBlock(block LogicalBlock, buffer []byte) error
	// Resize sets the size of the device to exactly `sizeBytes` bytes.
	Resize(sizeBytes int64) error
	// Sync commits all writes to stable storage.
	Sync() error
	// Close releases the device. It must not be used afterwards.
	Close() error
}

// CeilDiv returns the smallest integer >= a/b. b must not be 0.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	return (a + b - 1) / b
}
