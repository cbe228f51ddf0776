package verysimple

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dchen22/vsfs"
	"github.com/noxer/bytewriter"
)

// BlockRef is a block number stored in an inode. 0 means "no block": block 0
// is the superblock and can never hold file data.
type BlockRef uint32

const UnusedBlockRef BlockRef = 0

// NumDirectBlocks is the number of block references stored in the inode
// itself.
const NumDirectBlocks = 12

// InodeSize is the size of one record in the inode table.
const InodeSize = 72

// RootInumber is the inode number of the root directory.
const RootInumber = 0

// RawInode is the on-disk representation of an inode. Timestamps are seconds
// since the Unix epoch.
type RawInode struct {
	Size       uint32
	AccessTime uint32
	ModifyTime uint32
	CreateTime uint32
	Nlinks     uint32
	Direct     [NumDirectBlocks]BlockRef
	Indirect   BlockRef
}

// Inode is the in-memory form of [RawInode].
type Inode struct {
	Size         uint32
	LastAccessed time.Time
	LastModified time.Time
	CreatedAt    time.Time
	Nlinks       uint32
	Direct       [NumDirectBlocks]BlockRef
	Indirect     BlockRef
}

func SerializeTimestamp(tstamp time.Time) uint32 {
	return uint32(tstamp.Unix())
}

func DeserializeTimestamp(tstamp uint32) time.Time {
	return time.Unix(int64(tstamp), 0).UTC()
}

func RawInodeToInode(raw RawInode) Inode {
	return Inode{
		Size:         raw.Size,
		LastAccessed: DeserializeTimestamp(raw.AccessTime),
		LastModified: DeserializeTimestamp(raw.ModifyTime),
		CreatedAt:    DeserializeTimestamp(raw.CreateTime),
		Nlinks:       raw.Nlinks,
		Direct:       raw.Direct,
		Indirect:     raw.Indirect,
	}
}

func InodeToRawInode(inode Inode) RawInode {
	return RawInode{
		Size:       inode.Size,
		AccessTime: SerializeTimestamp(inode.LastAccessed),
		ModifyTime: SerializeTimestamp(inode.LastModified),
		CreateTime: SerializeTimestamp(inode.CreatedAt),
		Nlinks:     inode.Nlinks,
		Direct:     inode.Direct,
		Indirect:   inode.Indirect,
	}
}

// Blocks returns the direct block references that are in use, in order.
func (inode *Inode) Blocks() []BlockRef {
	blocks := make([]BlockRef, 0, NumDirectBlocks)
	for _, ref := range inode.Direct {
		if ref != UnusedBlockRef {
			blocks = append(blocks, ref)
		}
	}
	return blocks
}

// EncodeInode writes `inode` into the first [InodeSize] bytes of `buffer`.
func EncodeInode(inode Inode, buffer []byte) error {
	if len(buffer) < InodeSize {
		msg := fmt.Sprintf("need %d bytes for an inode, got %d", InodeSize, len(buffer))
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	raw := InodeToRawInode(inode)
	err := binary.Write(bytewriter.New(buffer), binary.LittleEndian, &raw)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// DecodeInode reads an inode from the first [InodeSize] bytes of `buffer`. If
// `totalBlocks` is non-zero, every block reference must be less than it.
func DecodeInode(buffer []byte, totalBlocks uint32) (Inode, error) {
	if len(buffer) < InodeSize {
		msg := fmt.Sprintf("need %d bytes for an inode, got %d", InodeSize, len(buffer))
		return Inode{}, vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	var raw RawInode
	err := binary.Read(bytes.NewReader(buffer[:InodeSize]), binary.LittleEndian, &raw)
	if err != nil {
		return Inode{}, vsfs.ErrIOFailed.Wrap(err)
	}

	if totalBlocks != 0 {
		refs := append(raw.Direct[:], raw.Indirect)
		for i, ref := range refs {
			if uint32(ref) >= totalBlocks {
				msg := fmt.Sprintf(
					"corruption detected: block reference %d points to block %d of [0, %d)",
					i,
					ref,
					totalBlocks)
				return Inode{}, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
			}
		}
	}
	return RawInodeToInode(raw), nil
}
