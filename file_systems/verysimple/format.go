package verysimple

import (
	"fmt"
	"strings"

	"github.com/dchen22/vsfs"
	c "github.com/dchen22/vsfs/file_systems/common"
	"github.com/dchen22/vsfs/file_systems/common/blockcache"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// FormatState is a step of the formatting pipeline. States are reached in
// declaration order; StateFailed can follow any of them.
type FormatState int

const (
	StateUnopened FormatState = iota
	StateSized
	StateMapped
	StateLayoutComputed
	StateSuperblockWritten
	StateInodeTableCleared
	StateBitmapsInitialized
	StateRootCreated
	StateFinalized
	StateFailed
)

var formatStateNames = [...]string{
	"Unopened",
	"Sized",
	"Mapped",
	"LayoutComputed",
	"SuperblockWritten",
	"InodeTableCleared",
	"BitmapsInitialized",
	"RootCreated",
	"Finalized",
	"Failed",
}

func (state FormatState) String() string {
	if state < 0 || int(state) >= len(formatStateNames) {
		return fmt.Sprintf("FormatState(%d)", int(state))
	}
	return formatStateNames[state]
}

// FormatError is returned when formatting fails. State is the last state the
// pipeline reached before the failing step. The image may have been partially
// written; nothing is rolled back.
type FormatError struct {
	State FormatState
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format failed after reaching state %s: %s", e.State, e.Err.Error())
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// DeviceOpener opens or creates the backing store for an image. It's called
// exactly once per format.
type DeviceOpener func(bytesPerBlock uint) (c.BlockDevice, error)

// FileOpener returns a [DeviceOpener] for the image file at `path`, creating
// it if it doesn't exist.
func FileOpener(path string) DeviceOpener {
	return func(bytesPerBlock uint) (c.BlockDevice, error) {
		device, err := c.OpenFileDevice(path, bytesPerBlock)
		if err != nil {
			return nil, err
		}
		return device, nil
	}
}

// FormatDisk creates a VSFS image of exactly `diskSizeBytes` bytes at `path`
// with room for `maxFiles` inodes, using the default block size. Any existing
// contents of the file are destroyed.
func FormatDisk(path string, diskSizeBytes, maxFiles uint64) error {
	_, err := Format(
		FileOpener(path),
		Options{
			DiskSizeBytes: diskSizeBytes,
			MaxFiles:      maxFiles,
		},
	)
	return err
}

// formatContext holds everything one call to Format owns: the device, the
// mapped image, and views of each region within it. Nothing in it outlives the
// call.
type formatContext struct {
	options Options
	open    DeviceOpener
	state   FormatState

	device      c.BlockDevice
	image       *blockcache.BlockCache
	layout      Layout
	superblock  Superblock
	inodeBitmap c.Bitmap
	dataBitmap  c.Bitmap
	inodeTable  []byte
	dataSection []byte
}

type formatStep struct {
	next FormatState
	run  func() error
}

// Format writes a new VSFS image to the device returned by `open`. Steps run
// in a fixed order, and the first failure stops the pipeline. Whatever was
// written up to that point is flushed, the device is closed, and a
// [*FormatError] is returned.
//
// On success it returns the superblock as written.
func Format(open DeviceOpener, options Options) (Superblock, error) {
	err := options.Validate()
	options = options.withDefaults()
	if err != nil {
		options.Logger.WithError(err).Error("invalid format options")
		return Superblock{}, &FormatError{State: StateUnopened, Err: err}
	}

	ctx := &formatContext{
		options: options,
		open:    open,
		state:   StateUnopened,
	}

	steps := []formatStep{
		{StateSized, ctx.openDevice},
		{StateMapped, ctx.mapImage},
		{StateLayoutComputed, ctx.computeLayout},
		{StateSuperblockWritten, ctx.writeSuperblock},
		{StateInodeTableCleared, ctx.clearInodeTable},
		{StateBitmapsInitialized, ctx.initializeBitmaps},
		{StateRootCreated, ctx.createRootDirectory},
		{StateFinalized, ctx.release},
	}

	for _, step := range steps {
		err = step.run()
		if err != nil {
			return Superblock{}, ctx.fail(err)
		}
		ctx.state = step.next
	}

	options.Logger.WithFields(logrus.Fields{
		"total_blocks":        ctx.layout.TotalBlocks,
		"block_size":          ctx.layout.BlockSize,
		"inode_bitmap_blocks": ctx.layout.InodeBitmapBlocks,
		"data_bitmap_blocks":  ctx.layout.DataBitmapBlocks,
		"inode_table_blocks":  ctx.layout.InodeTableBlocks,
		"data_blocks":         ctx.layout.DataBlocks,
	}).Info("image formatted")
	return ctx.superblock, nil
}

func joinErrorMessages(errs []error) string {
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

// fail moves the pipeline to StateFailed and releases everything it holds.
func (ctx *formatContext) fail(stepErr error) error {
	failedAfter := ctx.state
	ctx.state = StateFailed

	err := stepErr
	cleanupErr := ctx.release()
	if cleanupErr != nil {
		merged := multierror.Append(stepErr, cleanupErr)
		merged.ErrorFormat = joinErrorMessages
		err = merged
	}

	ctx.options.Logger.
		WithError(err).
		WithField("state", failedAfter.String()).
		Error("format failed")
	return &FormatError{State: failedAfter, Err: err}
}

// release writes back the mapped image and closes the device. It's safe to
// call more than once; later calls do nothing.
func (ctx *formatContext) release() error {
	var result *multierror.Error

	if ctx.image != nil {
		result = multierror.Append(result, ctx.image.Flush())
		ctx.image = nil
	}
	if ctx.device != nil {
		result = multierror.Append(result, ctx.device.Sync())
		result = multierror.Append(result, ctx.device.Close())
		ctx.device = nil
	}

	ctx.inodeBitmap = c.Bitmap{}
	ctx.dataBitmap = c.Bitmap{}
	ctx.inodeTable = nil
	ctx.dataSection = nil

	if result != nil {
		result.ErrorFormat = joinErrorMessages
	}
	return result.ErrorOrNil()
}

// openDevice opens the backing store and resizes it to exactly the requested
// size. It's truncated to nothing first so no old bytes survive in a trailing
// partial block.
func (ctx *formatContext) openDevice() error {
	bytesPerBlock := uint(ctx.options.BlockSize)

	device, err := ctx.open(bytesPerBlock)
	if err != nil {
		return vsfs.CastToDriverError(err)
	}
	if device == nil {
		return vsfs.ErrNullReference.WithMessage("device opener returned no device")
	}
	ctx.device = device

	if device.BytesPerBlock() != bytesPerBlock {
		msg := fmt.Sprintf(
			"device uses %d-byte blocks, expected %d", device.BytesPerBlock(), bytesPerBlock)
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	err = device.Resize(0)
	if err != nil {
		return vsfs.CastToDriverError(err)
	}
	return vsfs.CastToDriverError(device.Resize(int64(ctx.options.DiskSizeBytes)))
}

// mapImage makes the whole device addressable and zeroes it. Every block is
// marked dirty, so the entire device is rewritten when the image is released.
func (ctx *formatContext) mapImage() error {
	expectedBlocks := ctx.options.DiskSizeBytes / ctx.options.BlockSize
	if uint64(ctx.device.TotalBlocks()) != expectedBlocks {
		msg := fmt.Sprintf(
			"device has %d blocks after resizing, expected %d",
			ctx.device.TotalBlocks(),
			expectedBlocks)
		return vsfs.ErrIOFailed.WithMessage(msg)
	}

	ctx.image = blockcache.WrapDevice(ctx.device)
	ctx.image.ZeroAll()
	return nil
}

// computeLayout plans the regions and takes a view of each one.
func (ctx *formatContext) computeLayout() error {
	layout, err := ComputeLayout(
		ctx.options.DiskSizeBytes, ctx.options.BlockSize, ctx.options.MaxFiles)
	if err != nil {
		return err
	}
	ctx.layout = layout

	if layout.InodeTableCapacity() < layout.MaxFiles {
		ctx.options.Logger.Warnf(
			"inode table holds %d of %d inodes; the table size is rounded down",
			layout.InodeTableCapacity(),
			layout.MaxFiles)
	}

	inodeBitmapBytes, err := ctx.image.GetSlice(
		layout.InodeBitmapStart(), uint(layout.InodeBitmapBlocks))
	if err != nil {
		return err
	}
	ctx.inodeBitmap = c.NewBitmap(inodeBitmapBytes, uint(layout.MaxFiles))

	dataBitmapBytes, err := ctx.image.GetSlice(
		layout.DataBitmapStart(), uint(layout.DataBitmapBlocks))
	if err != nil {
		return err
	}
	ctx.dataBitmap = c.NewBitmap(dataBitmapBytes, uint(layout.TotalBlocks))

	ctx.inodeTable, err = ctx.image.GetSlice(
		layout.InodeTableStart(), uint(layout.InodeTableBlocks))
	if err != nil {
		return err
	}

	ctx.dataSection, err = ctx.image.GetSlice(layout.DataStart(), uint(layout.DataBlocks))
	return err
}

func (ctx *formatContext) writeSuperblock() error {
	sb, err := NewSuperblock(ctx.layout)
	if err != nil {
		return err
	}
	ctx.superblock = sb
	return ctx.flushSuperblock()
}

// flushSuperblock serializes the in-memory superblock into block 0.
func (ctx *formatContext) flushSuperblock() error {
	block, err := ctx.image.GetSlice(0, 1)
	if err != nil {
		return err
	}

	err = ctx.superblock.Encode(block)
	if err != nil {
		return err
	}
	return ctx.image.MarkBlockRangeDirty(0, 1)
}

func (ctx *formatContext) clearInodeTable() error {
	for i := range ctx.inodeTable {
		ctx.inodeTable[i] = 0
	}
	return ctx.image.MarkBlockRangeDirty(
		ctx.layout.InodeTableStart(), uint(ctx.layout.InodeTableBlocks))
}

// initializeBitmaps clears both bitmaps and marks the superblock and the
// bitmaps themselves as used in the data bitmap. The inode table's blocks are
// not marked; existing images were written that way.
func (ctx *formatContext) initializeBitmaps() error {
	err := ctx.inodeBitmap.Clear()
	if err != nil {
		return err
	}

	err = ctx.dataBitmap.Clear()
	if err != nil {
		return err
	}

	err = ctx.dataBitmap.SetRange(0, uint(ctx.layout.BitmapRegionEnd()), true)
	if err != nil {
		return err
	}
	return ctx.markBitmapsDirty()
}

func (ctx *formatContext) markBitmapsDirty() error {
	return ctx.image.MarkBlockRangeDirty(
		ctx.layout.InodeBitmapStart(),
		uint(ctx.layout.InodeBitmapBlocks+ctx.layout.DataBitmapBlocks))
}

// createRootDirectory allocates inode 0 and writes the root directory's inode.
func (ctx *formatContext) createRootDirectory() error {
	inumber, err := ctx.inodeBitmap.Allocate()
	if err != nil {
		return err
	}
	if inumber != RootInumber {
		msg := fmt.Sprintf("root directory got inode %d, expected %d", inumber, RootInumber)
		return vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}

	err = ctx.reserveInodeTableSpill(uint64(inumber))
	if err != nil {
		return err
	}

	now := ctx.options.Now()
	root := Inode{
		Nlinks:       2,
		LastAccessed: now,
		LastModified: now,
		CreatedAt:    now,
	}

	if ctx.options.PopulateRootDirectory {
		err = ctx.populateRootDirectory(&root)
		if err != nil {
			return err
		}
	} else {
		ctx.options.Logger.Debug("root directory has 2 links but no \".\" or \"..\" entries")
	}

	err = ctx.writeInode(uint64(inumber), root)
	if err != nil {
		return err
	}

	ctx.superblock.UsedInodes++
	return ctx.flushSuperblock()
}

// reserveInodeTableSpill handles a record that doesn't fit in the inode table.
// Records are always written at their nominal offset, so one past the end of
// the table lands in the data region. The data blocks it overlaps are marked
// used so nothing is later allocated on top of it.
func (ctx *formatContext) reserveInodeTableSpill(index uint64) error {
	bs := ctx.layout.BlockSize
	tableBytes := ctx.layout.InodeTableBlocks * bs
	recordStart := index * InodeSize
	recordEnd := recordStart + InodeSize
	if recordEnd <= tableBytes {
		return nil
	}

	firstBlock := recordStart / bs
	if firstBlock < ctx.layout.InodeTableBlocks {
		firstBlock = ctx.layout.InodeTableBlocks
	}
	lastBlock := (recordEnd - 1) / bs

	for relative := firstBlock; relative <= lastBlock; relative++ {
		block := uint64(ctx.layout.InodeTableStart()) + relative
		if block >= ctx.layout.TotalBlocks {
			msg := fmt.Sprintf("inode %d would extend past the end of the image", index)
			return vsfs.ErrNoSpaceOnDevice.WithMessage(msg)
		}

		inUse, err := ctx.dataBitmap.Get(uint(block))
		if err != nil {
			return err
		}
		if inUse {
			continue
		}

		err = ctx.dataBitmap.Set(uint(block), true)
		if err != nil {
			return err
		}
		ctx.superblock.FreeBlocks--
		ctx.options.Logger.WithFields(logrus.Fields{
			"inode": index,
			"block": block,
		}).Warn("inode doesn't fit in the inode table; reserved a data block for it")
	}
	return ctx.markBitmapsDirty()
}

// populateRootDirectory gives the root directory a data block holding "." and
// "..", both pointing back at the root.
func (ctx *formatContext) populateRootDirectory(root *Inode) error {
	block, err := ctx.dataBitmap.AllocateFrom(uint(ctx.layout.DataStart()))
	if err != nil {
		return err
	}
	ctx.superblock.FreeBlocks--

	err = ctx.markBitmapsDirty()
	if err != nil {
		return err
	}

	bs := ctx.layout.BlockSize
	offset := (uint64(block) - uint64(ctx.layout.DataStart())) * bs
	directory := ctx.dataSection[offset : offset+bs]

	for i, name := range []string{".", ".."} {
		dirent, err := NewDirent(RootInumber, name, DirentTypeDirectory)
		if err != nil {
			return err
		}
		err = dirent.Encode(directory[i*DirentSize:])
		if err != nil {
			return err
		}
	}

	root.Size = 2 * DirentSize
	root.Direct[0] = BlockRef(block)
	return ctx.image.MarkBlockRangeDirty(c.LogicalBlock(block), 1)
}

// writeInode serializes `inode` at its slot in the inode table.
func (ctx *formatContext) writeInode(index uint64, inode Inode) error {
	bs := uint64(ctx.layout.BlockSize)
	offset := uint64(ctx.layout.InodeByteOffset(index))
	startBlock := offset / bs
	count := c.CeilDiv(offset+InodeSize, bs) - startBlock

	blocks, err := ctx.image.GetSlice(c.LogicalBlock(startBlock), uint(count))
	if err != nil {
		return err
	}

	err = EncodeInode(inode, blocks[offset%bs:])
	if err != nil {
		return err
	}
	return ctx.image.MarkBlockRangeDirty(c.LogicalBlock(startBlock), uint(count))
}
