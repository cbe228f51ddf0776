package layoutmap

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/dchen22/vsfs"
	"github.com/dchen22/vsfs/file_systems/verysimple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formattedReport(t *testing.T) verysimple.Report {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, verysimple.FormatDisk(path, 4096*100, 1000))

	report, err := verysimple.InspectFile(path, 4096)
	require.NoError(t, err)
	return report
}

func TestDraw__RegionColors(t *testing.T) {
	img, err := Draw(formattedReport(t))
	require.NoError(t, err)
	assert.Equal(t, width, img.Bounds().Dx())

	y := int(barTop()) + barHeight/2

	// The superblock is the leftmost region.
	r, g, b, _ := img.At(margin+1, y).RGBA()
	assert.Greater(t, r, g, "superblock should be red")
	assert.Greater(t, r, b, "superblock should be red")

	// Data blocks take up the right end of the bar.
	r, _, b, _ = img.At(width-margin-2, y).RGBA()
	assert.Greater(t, b, r, "data region should be blue")
}

func TestRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.png")
	require.NoError(t, Render(formattedReport(t), path))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, width, img.Bounds().Dx())
}

func TestDraw__EmptyReport(t *testing.T) {
	_, err := Draw(verysimple.Report{})
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)

	err = Render(verysimple.Report{}, filepath.Join(t.TempDir(), "map.png"))
	assert.ErrorIs(t, err, vsfs.ErrInvalidArgument)
}

func TestRender__BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "map.png")
	err := Render(formattedReport(t), path)
	assert.ErrorIs(t, err, vsfs.ErrIOFailed)
}
