package verysimple

import (
	"fmt"

	"github.com/dchen22/vsfs"
	c "github.com/dchen22/vsfs/file_systems/common"
	"github.com/dchen22/vsfs/file_systems/common/blockcache"
	"github.com/hashicorp/go-multierror"
)

// Report describes a formatted image.
type Report struct {
	Superblock Superblock
	Layout     Layout
	// InodesInUse is the number of bits set in the inode bitmap.
	InodesInUse uint
	// BlocksInUse is the number of bits set in the data bitmap, including the
	// superblock and the bitmaps themselves.
	BlocksInUse uint
	Root        Inode
	// RootEntries holds the root directory's entries. It's empty for a root
	// directory formatted without a data block.
	RootEntries []RawDirent
}

// Inspect reads the image on `device` and checks that its metadata is
// consistent: the superblock matches the layout its own parameters produce, and
// both bitmaps agree with the superblock's counters. The device is not closed.
func Inspect(device c.BlockDevice) (Report, error) {
	var report Report

	if device.TotalBlocks() == 0 {
		return report, vsfs.ErrInvalidFileSystem.WithMessage("image is empty")
	}
	image := blockcache.WrapDevice(device)

	block, err := image.GetSlice(0, 1)
	if err != nil {
		return report, err
	}
	sb, err := DecodeSuperblock(block)
	if err != nil {
		return report, err
	}
	report.Superblock = sb
	report.Layout = sb.Layout()

	if uint(sb.BlockSizeBytes) != device.BytesPerBlock() {
		msg := fmt.Sprintf(
			"image uses %d-byte blocks but the device was opened with %d",
			sb.BlockSizeBytes,
			device.BytesPerBlock())
		return report, vsfs.ErrInvalidArgument.WithMessage(msg)
	}
	if uint(sb.TotalBlocks) > device.TotalBlocks() {
		msg := fmt.Sprintf(
			"corruption detected: superblock says %d blocks but the image only has %d",
			sb.TotalBlocks,
			device.TotalBlocks())
		return report, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}

	expected, err := ComputeLayout(
		uint64(sb.DiskSizeBytes), uint64(sb.BlockSizeBytes), uint64(sb.MaxInodes))
	if err != nil {
		return report, vsfs.ErrFileSystemCorrupted.Wrap(err)
	}
	if expected != report.Layout {
		msg := fmt.Sprintf(
			"corruption detected: superblock layout %+v doesn't match computed layout %+v",
			report.Layout,
			expected)
		return report, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}

	err = inspectBitmaps(image, &report)
	if err != nil {
		return report, err
	}
	if report.InodesInUse == 0 {
		return report, nil
	}

	err = inspectRoot(image, &report)
	return report, err
}

// InspectFile is [Inspect] for the image file at `path`.
func InspectFile(path string, bytesPerBlock uint) (Report, error) {
	device, err := c.OpenFileDevice(path, bytesPerBlock)
	if err != nil {
		return Report{}, err
	}

	report, err := Inspect(device)
	closeErr := device.Close()
	if closeErr != nil {
		if err == nil {
			return report, closeErr
		}
		return report, multierror.Append(err, closeErr)
	}
	return report, err
}

func inspectBitmaps(image *blockcache.BlockCache, report *Report) error {
	layout := report.Layout
	sb := report.Superblock

	inodeBitmapBytes, err := image.GetSlice(
		layout.InodeBitmapStart(), uint(layout.InodeBitmapBlocks))
	if err != nil {
		return err
	}
	report.InodesInUse, err = c.NewBitmap(inodeBitmapBytes, uint(layout.MaxFiles)).CountSet()
	if err != nil {
		return err
	}

	dataBitmapBytes, err := image.GetSlice(
		layout.DataBitmapStart(), uint(layout.DataBitmapBlocks))
	if err != nil {
		return err
	}
	report.BlocksInUse, err = c.NewBitmap(dataBitmapBytes, uint(layout.TotalBlocks)).CountSet()
	if err != nil {
		return err
	}

	if report.InodesInUse != uint(sb.UsedInodes) {
		msg := fmt.Sprintf(
			"corruption detected: inode bitmap has %d inodes in use, superblock says %d",
			report.InodesInUse,
			sb.UsedInodes)
		return vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}

	expectedBlocks := layout.BitmapRegionEnd() + uint64(sb.DataBlocks-sb.FreeBlocks)
	if uint64(report.BlocksInUse) != expectedBlocks {
		msg := fmt.Sprintf(
			"corruption detected: data bitmap has %d blocks in use, expected %d",
			report.BlocksInUse,
			expectedBlocks)
		return vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}
	return nil
}

func inspectRoot(image *blockcache.BlockCache, report *Report) error {
	layout := report.Layout
	bs := layout.BlockSize
	offset := uint64(layout.InodeByteOffset(RootInumber))
	startBlock := offset / bs
	count := c.CeilDiv(offset+InodeSize, bs) - startBlock
	if startBlock+count > layout.TotalBlocks {
		return vsfs.ErrFileSystemCorrupted.WithMessage(
			"corruption detected: root inode lies past the end of the image")
	}

	blocks, err := image.GetSlice(c.LogicalBlock(startBlock), uint(count))
	if err != nil {
		return err
	}
	report.Root, err = DecodeInode(blocks[offset%bs:], report.Superblock.TotalBlocks)
	if err != nil {
		return err
	}

	entryCount := uint64(report.Root.Size) / DirentSize
	if entryCount == 0 || report.Root.Direct[0] == UnusedBlockRef {
		return nil
	}
	if entryCount > bs/DirentSize {
		msg := fmt.Sprintf(
			"corruption detected: root directory claims %d entries in one block", entryCount)
		return vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}

	directory, err := image.GetSlice(c.LogicalBlock(report.Root.Direct[0]), 1)
	if err != nil {
		return err
	}
	for i := uint64(0); i < entryCount; i++ {
		dirent, err := DecodeDirent(directory[i*DirentSize:])
		if err != nil {
			return err
		}
		report.RootEntries = append(report.RootEntries, dirent)
	}
	return nil
}
