package verysimple

import (
	"fmt"

	"github.com/dchen22/vsfs"
	c "github.com/dchen22/vsfs/file_systems/common"
)

// DefaultBlockSize is the block size used when none is given.
const DefaultBlockSize = 4096

// Layout gives the size of every region of an image, in blocks. It's computed
// once by [ComputeLayout] and never changes afterwards.
type Layout struct {
	DiskSizeBytes     uint64
	BlockSize         uint64
	MaxFiles          uint64
	TotalBlocks       uint64
	InodeBitmapBlocks uint64
	DataBitmapBlocks  uint64
	InodeTableBlocks  uint64
	DataBlocks        uint64
}

// ComputeLayout partitions a disk of `diskSizeBytes` bytes into regions. It is
// a pure function of its arguments.
//
// Both bitmaps round their block counts up so every inode and every block has a
// bit, even if it lands in a partial trailing block. The inode table rounds
// *down*: a table that doesn't fill its last block loses the records that would
// have gone there instead of taking another block. This asymmetry is how
// existing VSFS images were laid out, and changing it would move the data
// region, so it must stay. [Layout.InodeTableCapacity] gives the number of
// records that actually fit.
func ComputeLayout(diskSizeBytes, blockSizeBytes, maxFiles uint64) (Layout, error) {
	if blockSizeBytes == 0 {
		return Layout{}, vsfs.ErrInvalidArgument.WithMessage("block size can't be 0")
	}
	if maxFiles == 0 {
		return Layout{}, vsfs.ErrInvalidArgument.WithMessage("max files can't be 0")
	}

	layout := Layout{
		DiskSizeBytes: diskSizeBytes,
		BlockSize:     blockSizeBytes,
		MaxFiles:      maxFiles,
	}

	bitsPerBlock := blockSizeBytes * 8
	layout.TotalBlocks = diskSizeBytes / blockSizeBytes
	layout.InodeBitmapBlocks = c.CeilDiv(maxFiles, bitsPerBlock)
	layout.DataBitmapBlocks = c.CeilDiv(layout.TotalBlocks, bitsPerBlock)
	layout.InodeTableBlocks = (maxFiles * InodeSize) / blockSizeBytes

	if layout.TotalBlocks < 2 {
		msg := fmt.Sprintf(
			"need at least 2 blocks of %d bytes, disk has %d", blockSizeBytes, layout.TotalBlocks)
		return Layout{}, vsfs.ErrInsufficientSpace.WithMessage(msg)
	}
	if layout.DataBitmapBlocks < 1 || layout.InodeBitmapBlocks < 1 {
		return Layout{}, vsfs.ErrInsufficientSpace.WithMessage("bitmaps need at least one block each")
	}

	metadataBlocks := 1 + layout.InodeBitmapBlocks + layout.DataBitmapBlocks + layout.InodeTableBlocks
	if metadataBlocks >= layout.TotalBlocks {
		msg := fmt.Sprintf(
			"metadata needs %d blocks (1 superblock, %d inode bitmap, %d data bitmap,"+
				" %d inode table), leaving no data blocks out of %d",
			metadataBlocks,
			layout.InodeBitmapBlocks,
			layout.DataBitmapBlocks,
			layout.InodeTableBlocks,
			layout.TotalBlocks)
		return Layout{}, vsfs.ErrInsufficientSpace.WithMessage(msg)
	}
	layout.DataBlocks = layout.TotalBlocks - metadataBlocks

	return layout, nil
}

// InodeBitmapStart is the first block of the inode bitmap.
func (layout Layout) InodeBitmapStart() c.LogicalBlock {
	return 1
}

// DataBitmapStart is the first block of the data bitmap.
func (layout Layout) DataBitmapStart() c.LogicalBlock {
	return c.LogicalBlock(1 + layout.InodeBitmapBlocks)
}

// InodeTableStart is the first block of the inode table.
func (layout Layout) InodeTableStart() c.LogicalBlock {
	return c.LogicalBlock(1 + layout.InodeBitmapBlocks + layout.DataBitmapBlocks)
}

// DataStart is the first data block.
func (layout Layout) DataStart() c.LogicalBlock {
	return layout.InodeTableStart() + c.LogicalBlock(layout.InodeTableBlocks)
}

// BitmapRegionEnd gives the number of leading blocks occupied by the superblock
// and both bitmaps. These are the blocks marked in use by a fresh format.
func (layout Layout) BitmapRegionEnd() uint64 {
	return 1 + layout.InodeBitmapBlocks + layout.DataBitmapBlocks
}

// InodeTableCapacity gives the number of whole inode records that fit in the
// inode table. Because the table size is rounded down this can be less than
// MaxFiles.
func (layout Layout) InodeTableCapacity() uint64 {
	return layout.InodeTableBlocks * layout.BlockSize / InodeSize
}

// ByteOffset converts a block number to a byte offset from the start of the
// image.
func (layout Layout) ByteOffset(block c.LogicalBlock) int64 {
	return int64(block) * int64(layout.BlockSize)
}

// InodeByteOffset gives the offset from the start of the image of the record
// for inode `index`.
func (layout Layout) InodeByteOffset(index uint64) int64 {
	return layout.ByteOffset(layout.InodeTableStart()) + int64(index*InodeSize)
}

// AccountedBlocks sums every region. For a valid layout it equals TotalBlocks.
func (layout Layout) AccountedBlocks() uint64 {
	return 1 + layout.InodeBitmapBlocks + layout.DataBitmapBlocks +
		layout.InodeTableBlocks + layout.DataBlocks
}
