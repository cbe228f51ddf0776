package verysimple

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dchen22/vsfs"
	"github.com/noxer/bytewriter"
)

// Magic is the ASCII string "VSFS" read as a big-endian 32-bit integer. It's
// stored little-endian like every other field, so the first four bytes of an
// image are "SFSV".
const Magic uint32 = 0x56534653

// SuperblockSize is the number of bytes of block 0 used by the superblock. The
// rest of the block is padding.
const SuperblockSize = 44

// Superblock is the on-disk record at the start of block 0. Field order is the
// on-disk order.
type Superblock struct {
	Magic             uint32
	DiskSizeBytes     uint32
	BlockSizeBytes    uint32
	TotalBlocks       uint32
	InodeTableBlocks  uint32
	DataBlocks        uint32
	DataBitmapBlocks  uint32
	InodeBitmapBlocks uint32
	MaxInodes         uint32
	UsedInodes        uint32
	FreeBlocks        uint32
}

// NewSuperblock builds the superblock of a freshly formatted image: no inodes
// in use, every data block free.
func NewSuperblock(layout Layout) (Superblock, error) {
	fields := []struct {
		name  string
		value uint64
	}{
		{"disk size", layout.DiskSizeBytes},
		{"block size", layout.BlockSize},
		{"max files", layout.MaxFiles},
		{"total blocks", layout.TotalBlocks},
	}
	for _, field := range fields {
		if field.value > math.MaxUint32 {
			msg := fmt.Sprintf("%s %d doesn't fit in 32 bits", field.name, field.value)
			return Superblock{}, vsfs.ErrInvalidArgument.WithMessage(msg)
		}
	}

	return Superblock{
		Magic:             Magic,
		DiskSizeBytes:     uint32(layout.DiskSizeBytes),
		BlockSizeBytes:    uint32(layout.BlockSize),
		TotalBlocks:       uint32(layout.TotalBlocks),
		InodeTableBlocks:  uint32(layout.InodeTableBlocks),
		DataBlocks:        uint32(layout.DataBlocks),
		DataBitmapBlocks:  uint32(layout.DataBitmapBlocks),
		InodeBitmapBlocks: uint32(layout.InodeBitmapBlocks),
		MaxInodes:         uint32(layout.MaxFiles),
		UsedInodes:        0,
		FreeBlocks:        uint32(layout.DataBlocks),
	}, nil
}

// Encode writes the superblock into the beginning of `buffer`. Bytes after the
// first [SuperblockSize] are untouched.
func (sb *Superblock) Encode(buffer []byte) error {
	if len(buffer) < SuperblockSize {
		msg := fmt.Sprintf("need %d bytes for the superblock, got %d", SuperblockSize, len(buffer))
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	writer := bytewriter.New(buffer)
	err := binary.Write(writer, binary.LittleEndian, sb)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// DecodeSuperblock reads a superblock from the beginning of `buffer` and checks
// that it describes a consistent layout.
func DecodeSuperblock(buffer []byte) (Superblock, error) {
	var sb Superblock
	if len(buffer) < SuperblockSize {
		msg := fmt.Sprintf("need %d bytes for the superblock, got %d", SuperblockSize, len(buffer))
		return sb, vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	err := binary.Read(bytes.NewReader(buffer[:SuperblockSize]), binary.LittleEndian, &sb)
	if err != nil {
		return sb, vsfs.ErrIOFailed.Wrap(err)
	}

	if sb.Magic != Magic {
		msg := fmt.Sprintf("bad magic number %#08x, expected %#08x", sb.Magic, Magic)
		return sb, vsfs.ErrInvalidFileSystem.WithMessage(msg)
	}

	accounted := 1 + uint64(sb.InodeBitmapBlocks) + uint64(sb.DataBitmapBlocks) +
		uint64(sb.InodeTableBlocks) + uint64(sb.DataBlocks)
	if accounted != uint64(sb.TotalBlocks) {
		msg := fmt.Sprintf(
			"corruption detected: regions add up to %d blocks but the image has %d",
			accounted,
			sb.TotalBlocks)
		return sb, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}
	if sb.FreeBlocks > sb.DataBlocks {
		msg := fmt.Sprintf(
			"corruption detected: %d free blocks but only %d data blocks",
			sb.FreeBlocks,
			sb.DataBlocks)
		return sb, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}
	if sb.UsedInodes > sb.MaxInodes {
		msg := fmt.Sprintf(
			"corruption detected: %d inodes in use but the maximum is %d",
			sb.UsedInodes,
			sb.MaxInodes)
		return sb, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}
	return sb, nil
}

// Layout gives the region geometry recorded in the superblock.
func (sb *Superblock) Layout() Layout {
	return Layout{
		DiskSizeBytes:     uint64(sb.DiskSizeBytes),
		BlockSize:         uint64(sb.BlockSizeBytes),
		MaxFiles:          uint64(sb.MaxInodes),
		TotalBlocks:       uint64(sb.TotalBlocks),
		InodeBitmapBlocks: uint64(sb.InodeBitmapBlocks),
		DataBitmapBlocks:  uint64(sb.DataBitmapBlocks),
		InodeTableBlocks:  uint64(sb.InodeTableBlocks),
		DataBlocks:        uint64(sb.DataBlocks),
	}
}
