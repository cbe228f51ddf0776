// Bitmap allocator

package common

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dchen22/vsfs"
)

// Bitmap is a bit-addressable view over a raw byte buffer, usually a slice of
// the mapped image. Bit `i` set means unit `i` (an inode or a block) is in use.
// Bits are numbered least significant first within each byte.
//
// Bitmap is not synchronized; callers sharing one across goroutines must
// serialize access themselves.
type Bitmap struct {
	data  []byte
	nbits uint
}

// NewBitmap wraps `data` as a bitmap of `nbits` bits. No validation happens
// here; every operation checks the buffer before touching it.
func NewBitmap(data []byte, nbits uint) Bitmap {
	return Bitmap{data: data, nbits: nbits}
}

// BitmapSizeInBytes returns the minimum number of bytes required to store a
// bitmap containing the given number of bits.
func BitmapSizeInBytes(nbits uint) uint {
	return CeilDiv(nbits, 8)
}

// Len returns the declared number of bits.
func (bm Bitmap) Len() uint {
	return bm.nbits
}

// Bytes returns the underlying buffer.
func (bm Bitmap) Bytes() []byte {
	return bm.data
}

func (bm Bitmap) checkBuffer() error {
	if bm.data == nil {
		return vsfs.ErrNullReference.WithMessage("bitmap buffer is nil")
	}
	if uint(len(bm.data)) < BitmapSizeInBytes(bm.nbits) {
		msg := fmt.Sprintf(
			"bitmap buffer is %d bytes, need at least %d for %d bits",
			len(bm.data),
			BitmapSizeInBytes(bm.nbits),
			bm.nbits)
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}
	return nil
}

func (bm Bitmap) checkIndex(index uint) error {
	err := bm.checkBuffer()
	if err != nil {
		return err
	}
	if index >= bm.nbits {
		msg := fmt.Sprintf("bit index %d not in range [0, %d)", index, bm.nbits)
		return vsfs.ErrResultOutOfRange.WithMessage(msg)
	}
	return nil
}

// Get returns the value of bit `index`.
func (bm Bitmap) Get(index uint) (bool, error) {
	err := bm.checkIndex(index)
	if err != nil {
		return false, err
	}
	return bitmap.Get(bm.data, int(index)), nil
}

// Set sets bit `index` to `value`, leaving every other bit unchanged.
func (bm Bitmap) Set(index uint, value bool) error {
	err := bm.checkIndex(index)
	if err != nil {
		return err
	}
	bitmap.Set(bm.data, int(index), value)
	return nil
}

// SetRange sets `count` bits starting at `start` to `value`. The range is
// checked up front so a failing call modifies nothing.
func (bm Bitmap) SetRange(start, count uint, value bool) error {
	if count == 0 {
		return bm.checkBuffer()
	}
	err := bm.checkIndex(start + count - 1)
	if err != nil {
		return err
	}
	for i := start; i < start+count; i++ {
		bitmap.Set(bm.data, int(i), value)
	}
	return nil
}

// Clear zeroes the first ceil(nbits/8) bytes of the buffer. Bytes past that
// belong to whatever follows the bitmap and are left alone.
func (bm Bitmap) Clear() error {
	if bm.nbits == 0 {
		return vsfs.ErrInvalidArgument.WithMessage("can't clear a bitmap of 0 bits")
	}
	err := bm.checkBuffer()
	if err != nil {
		return err
	}

	used := bm.data[:BitmapSizeInBytes(bm.nbits)]
	for i := range used {
		used[i] = 0
	}
	return nil
}

// Allocate sets the lowest clear bit and returns its index. The scan always
// starts at 0, so the result depends only on the bitmap's contents. If every
// bit is set it returns [vsfs.ErrNoSpaceOnDevice].
func (bm Bitmap) Allocate() (uint, error) {
	return bm.AllocateFrom(0)
}

// AllocateFrom is like Allocate but ignores bits below `start`. It's used to
// allocate data blocks without scanning the metadata region.
func (bm Bitmap) AllocateFrom(start uint) (uint, error) {
	err := bm.checkBuffer()
	if err != nil {
		return 0, err
	}

	for i := start; i < bm.nbits; i++ {
		if !bitmap.Get(bm.data, int(i)) {
			bitmap.Set(bm.data, int(i), true)
			return i, nil
		}
	}

	msg := fmt.Sprintf("all bits in [%d, %d) are in use", start, bm.nbits)
	return 0, vsfs.ErrNoSpaceOnDevice.WithMessage(msg)
}

// Free clears an allocated bit. Trying to free a bit that isn't set returns
// [vsfs.ErrAlreadyInProgress].
func (bm Bitmap) Free(index uint) error {
	isSet, err := bm.Get(index)
	if err != nil {
		return err
	}
	if !isSet {
		msg := fmt.Sprintf("unit %d is already free", index)
		return vsfs.ErrAlreadyInProgress.WithMessage(msg)
	}

	bitmap.Set(bm.data, int(index), false)
	return nil
}

// CountSet returns the number of bits in [0, nbits) that are set.
func (bm Bitmap) CountSet() (uint, error) {
	err := bm.checkBuffer()
	if err != nil {
		return 0, err
	}

	total := uint(0)
	for i := uint(0); i < bm.nbits; i++ {
		if bitmap.Get(bm.data, int(i)) {
			total++
		}
	}
	return total, nil
}
