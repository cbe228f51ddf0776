package verysimple

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dchen22/vsfs"
	"github.com/sirupsen/logrus"
)

const MinBlockSize = 512
const MaxBlockSize = 65536

// Options controls how an image is formatted. The zero value of every field
// except DiskSizeBytes and MaxFiles is usable.
type Options struct {
	// DiskSizeBytes is the exact size the image will have, in bytes.
	DiskSizeBytes uint64
	// MaxFiles is the number of inodes the image can hold.
	MaxFiles uint64
	// BlockSize is the size of a block, in bytes. It must be a power of two
	// between [MinBlockSize] and [MaxBlockSize]. Defaults to [DefaultBlockSize].
	BlockSize uint64
	// PopulateRootDirectory gives the root directory a data block containing
	// "." and ".." entries, making it agree with its link count of 2. When
	// false, the root directory is created with no data block.
	PopulateRootDirectory bool
	// Now returns the timestamp used for the root directory. Defaults to
	// time.Now. Fix it to get byte-identical images.
	Now func() time.Time
	// Logger receives diagnostics. Defaults to discarding them.
	Logger logrus.FieldLogger
}

func (options Options) withDefaults() Options {
	if options.BlockSize == 0 {
		options.BlockSize = DefaultBlockSize
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Logger == nil {
		logger := logrus.New()
		logger.Out = io.Discard
		options.Logger = logger
	}
	return options
}

// Validate checks the options before anything is written. A zero BlockSize is
// treated as [DefaultBlockSize].
func (options Options) Validate() error {
	options = options.withDefaults()

	if options.MaxFiles == 0 {
		return vsfs.ErrInvalidArgument.WithMessage("max files can't be 0")
	}
	if options.MaxFiles > math.MaxUint32 {
		msg := fmt.Sprintf("max files %d doesn't fit in 32 bits", options.MaxFiles)
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	bs := options.BlockSize
	if bs < MinBlockSize || bs > MaxBlockSize || bs&(bs-1) != 0 {
		msg := fmt.Sprintf(
			"block size must be a power of two in [%d, %d], got %d",
			MinBlockSize,
			MaxBlockSize,
			bs)
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	// The superblock and at least one bitmap block.
	if options.DiskSizeBytes < 2*bs {
		msg := fmt.Sprintf(
			"disk size is too small: need at least %d bytes, got %d",
			2*bs,
			options.DiskSizeBytes)
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}
	if options.DiskSizeBytes > math.MaxUint32 {
		msg := fmt.Sprintf("disk size %d doesn't fit in 32 bits", options.DiskSizeBytes)
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}
	return nil
}
