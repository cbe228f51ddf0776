package blockcache_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/dchen22/vsfs"
	c "github.com/dchen22/vsfs/file_systems/common"
	"github.com/dchen22/vsfs/file_systems/common/blockcache"
	dt "github.com/dchen22/vsfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheOverImage(t *testing.T, bytesPerBlock, totalBlocks uint) (*blockcache.BlockCache, *dt.MemoryImage) {
	rawBlocks := dt.CreateRandomImage(bytesPerBlock, totalBlocks, t)
	image := dt.NewMemoryImage(rawBlocks)
	device := dt.NewMemoryDevice(t, image, bytesPerBlock)

	cache := blockcache.WrapDevice(device)
	assert.EqualValues(t, bytesPerBlock, cache.BytesPerBlock(), "wrong bytes per block")
	assert.EqualValues(t, totalBlocks, cache.TotalBlocks(), "wrong total blocks")
	assert.EqualValues(t, bytesPerBlock*totalBlocks, cache.Size(), "total size is wrong")
	return cache, image
}

// Test block fetch functionality with no trickery such as reading past the end
// of the image.
func TestBlockCache__Fetch__Basic(t *testing.T) {
	cache, image := newCacheOverImage(t, 128, 64)
	rawBlocks := append([]byte(nil), image.Bytes()...)

	currentBlock := make([]byte, 128)
	for i := c.LogicalBlock(0); i < 64; i++ {
		err := cache.Read(i, currentBlock)
		if err != nil {
			t.Errorf("failed to read block %d of [0, 64): %s", i, err.Error())
			continue
		}

		start := i * 128
		if !bytes.Equal(currentBlock, rawBlocks[start:start+128]) {
			t.Errorf("block %d read from the cache doesn't match", i)
		}
	}
}

// Trying to read past the end of an image must fail.
func TestBlockCache__Fetch__ReadPastEnd(t *testing.T) {
	cache, _ := newCacheOverImage(t, 512, 16)
	buffer := make([]byte, 512)

	assert.NoError(t, cache.Read(0, buffer), "failed to read first block")
	assert.NoError(t, cache.Read(15, buffer), "failed to read last block")

	err := cache.Read(16, buffer)
	assert.ErrorIs(t, err, vsfs.ErrResultOutOfRange)

	assert.NoError(t, cache.Read(0, make([]byte, 8192)), "failed reading entire image")
	assert.Error(t, cache.Read(0, make([]byte, 8193)), "read entire image + 1 byte")
}

// Write to a block and then read back that same block. You should always get
// back what you wrote.
func TestBlockCache__Write__Basic(t *testing.T) {
	cache, _ := newCacheOverImage(t, 512, 16)
	writeBuffer := make([]byte, cache.BytesPerBlock())
	readBuffer := make([]byte, cache.BytesPerBlock())

	for i := 0; i < int(cache.TotalBlocks()); i++ {
		rand.Read(writeBuffer)
		require.NoError(t, cache.Write(c.LogicalBlock(i), writeBuffer))
		require.NoError(t, cache.Read(c.LogicalBlock(i), readBuffer))

		assert.Equalf(
			t, writeBuffer, readBuffer, "wrote to block %d but read back different data", i)
		assert.True(t, cache.IsDirty(c.LogicalBlock(i)))
	}
}

// If we write to a block inside the cache but the buffer extends past the end
// of the cache, it fails immediately and no data is modified.
func TestBlockCache__Write__WriteOverlappingPastEndFails(t *testing.T) {
	cache, _ := newCacheOverImage(t, 512, 16)
	cacheData, err := cache.Data()
	require.NoError(t, err)
	copyOfOriginalData := append([]byte(nil), cacheData...)

	writeBuffer := make([]byte, cache.BytesPerBlock()*5)
	rand.Read(writeBuffer)

	err = cache.Write(c.LogicalBlock(12), writeBuffer)
	assert.Error(t, err, "writing past the end of the buffer should've failed but it didn't")
	assert.Equal(t, copyOfOriginalData, cacheData, "cache data was modified but shouldn't've been")
}

// Flushing writes back dirty blocks only.
func TestBlockCache__Flush__OnlyDirtyBlocks(t *testing.T) {
	cache, image := newCacheOverImage(t, 256, 8)
	original := append([]byte(nil), image.Bytes()...)

	slice, err := cache.GetSlice(3, 2)
	require.NoError(t, err)
	for i := range slice {
		slice[i] = 0x77
	}

	// Block 4 changed in memory but only block 3 is marked dirty.
	require.NoError(t, cache.MarkBlockRangeDirty(3, 1))
	require.NoError(t, cache.Flush())

	assert.Equal(t, bytes.Repeat([]byte{0x77}, 256), image.Bytes()[3*256:4*256])
	assert.Equal(t, original[4*256:5*256], image.Bytes()[4*256:5*256])
	assert.False(t, cache.IsDirty(3))
}

func TestBlockCache__ZeroAll(t *testing.T) {
	cache, image := newCacheOverImage(t, 512, 8)

	cache.ZeroAll()
	for i := c.LogicalBlock(0); i < 8; i++ {
		assert.True(t, cache.IsDirty(i))
	}

	require.NoError(t, cache.Flush())
	assert.Equal(t, make([]byte, 512*8), image.Bytes())
}

func TestBlockCache__FetchErrorIsIOFailure(t *testing.T) {
	sourceErr := errors.New("sector not found")
	cache := blockcache.New(
		512,
		4,
		func(c.LogicalBlock, []byte) error { return sourceErr },
		func(c.LogicalBlock, []byte) error { return nil },
	)

	_, err := cache.GetSlice(0, 1)
	assert.ErrorIs(t, err, vsfs.ErrIOFailed)
	assert.ErrorIs(t, err, sourceErr)
}
