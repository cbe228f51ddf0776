package verysimple_test

import (
	"fmt"
	"testing"

	"github.com/dchen22/vsfs"
	c "github.com/dchen22/vsfs/file_systems/common"
	vs "github.com/dchen22/vsfs/file_systems/verysimple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLayout__HundredBlocks(t *testing.T) {
	layout, err := vs.ComputeLayout(4096*100, 4096, 1000)
	require.NoError(t, err)

	assert.EqualValues(t, 100, layout.TotalBlocks)
	assert.EqualValues(t, 1, layout.InodeBitmapBlocks)
	assert.EqualValues(t, 1, layout.DataBitmapBlocks)
	// 1000 * 72 = 72000 bytes, which is 17.58 blocks rounded down.
	assert.EqualValues(t, 17, layout.InodeTableBlocks)
	assert.EqualValues(t, 80, layout.DataBlocks)

	assert.EqualValues(t, 1, layout.InodeBitmapStart())
	assert.EqualValues(t, 2, layout.DataBitmapStart())
	assert.EqualValues(t, 3, layout.InodeTableStart())
	assert.EqualValues(t, 20, layout.DataStart())
	assert.EqualValues(t, 3, layout.BitmapRegionEnd())
}

func TestComputeLayout__MinimalImage(t *testing.T) {
	layout, err := vs.ComputeLayout(4096*4, 4096, 1)
	require.NoError(t, err)

	assert.EqualValues(t, 4, layout.TotalBlocks)
	assert.EqualValues(t, 1, layout.InodeBitmapBlocks)
	assert.EqualValues(t, 1, layout.DataBitmapBlocks)
	assert.EqualValues(t, 0, layout.InodeTableBlocks, "one 72-byte record rounds down to 0 blocks")
	assert.EqualValues(t, 1, layout.DataBlocks)
	assert.EqualValues(t, 0, layout.InodeTableCapacity())
}

func TestComputeLayout__TwoBlocksIsTooSmall(t *testing.T) {
	_, err := vs.ComputeLayout(4096*2, 4096, 1)
	assert.ErrorIs(t, err, vsfs.ErrInsufficientSpace)
}

func TestComputeLayout__OneBlockIsTooSmall(t *testing.T) {
	_, err := vs.ComputeLayout(4096+100, 4096, 1)
	assert.ErrorIs(t, err, vsfs.ErrInsufficientSpace)
}

func TestComputeLayout__ZeroMaxFiles(t *testing.T) {
	for _, diskSize := range []uint64{0, 4096, 4096 * 100, 1 << 30} {
		_, err := vs.ComputeLayout(diskSize, 4096, 0)
		assert.ErrorIsf(t, err, vsfs.ErrInvalidArgument, "disk size %d", diskSize)
	}
}

func TestComputeLayout__ZeroBlockSize(t *testing.T) {
	_, err := vs.ComputeLayout(4096*100, 0, 10)
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)
}

func TestComputeLayout__InodeTableTooBig(t *testing.T) {
	// 1000 inodes need 17 blocks of table, far more than 10 blocks of disk.
	_, err := vs.ComputeLayout(4096*10, 4096, 1000)
	assert.ErrorIs(t, err, vsfs.ErrInsufficientSpace)
}

func TestComputeLayout__AccountingInvariant(t *testing.T) {
	blockSizes := []uint64{512, 1024, 4096, 65536}
	diskBlocks := []uint64{3, 4, 5, 17, 100, 4097, 65537}
	fileCounts := []uint64{1, 2, 7, 56, 57, 1000, 4096, 40000}

	for _, bs := range blockSizes {
		for _, blocks := range diskBlocks {
			for _, maxFiles := range fileCounts {
				// Add a partial trailing block to make sure it's ignored.
				diskSize := bs*blocks + bs/2
				t.Run(fmt.Sprintf("%d-%d-%d", bs, blocks, maxFiles), func(t *testing.T) {
					layout, err := vs.ComputeLayout(diskSize, bs, maxFiles)
					if err != nil {
						assert.ErrorIs(t, err, vsfs.ErrInsufficientSpace)
						return
					}

					assert.Equal(t, blocks, layout.TotalBlocks)
					assert.Equal(t, layout.TotalBlocks, layout.AccountedBlocks())
					assert.Greater(t, layout.DataBlocks, uint64(0))
					assert.GreaterOrEqual(t, layout.InodeBitmapBlocks*bs*8, maxFiles)
					assert.GreaterOrEqual(t, layout.DataBitmapBlocks*bs*8, layout.TotalBlocks)
					assert.LessOrEqual(t, layout.InodeTableBlocks*bs, maxFiles*vs.InodeSize)
					assert.Less(
						t,
						uint64(layout.DataStart())+layout.DataBlocks-1,
						layout.TotalBlocks,
						"data region runs off the end of the disk")
				})
			}
		}
	}
}

func TestComputeLayout__Pure(t *testing.T) {
	first, err := vs.ComputeLayout(1<<20, 1024, 333)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := vs.ComputeLayout(1<<20, 1024, 333)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestComputeLayout__InodeTableRoundsDown(t *testing.T) {
	// 57 records of 72 bytes is 4104 bytes, 8 more than one block.
	layout, err := vs.ComputeLayout(4096*100, 4096, 57)
	require.NoError(t, err)
	assert.EqualValues(t, 1, layout.InodeTableBlocks)
	assert.EqualValues(t, 56, layout.InodeTableCapacity())
}

func TestLayout__Offsets(t *testing.T) {
	layout, err := vs.ComputeLayout(4096*100, 4096, 1000)
	require.NoError(t, err)

	assert.EqualValues(t, 0, layout.ByteOffset(0))
	assert.EqualValues(t, 20*4096, layout.ByteOffset(layout.DataStart()))
	assert.EqualValues(t, 3*4096, layout.InodeByteOffset(0))
	assert.EqualValues(t, 3*4096+72*10, layout.InodeByteOffset(10))
	assert.Equal(t, c.LogicalBlock(20), layout.DataStart())
}
