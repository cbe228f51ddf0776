// Package layoutmap draws a picture of a VSFS image: a bar showing where each
// region lies, followed by the superblock's fields.

package layoutmap

import (
	"fmt"
	"image"

	"github.com/dchen22/vsfs"
	"github.com/dchen22/vsfs/file_systems/verysimple"
	"github.com/fogleman/gg"
)

const (
	width      = 800
	margin     = 20
	titleSize  = 40
	barHeight  = 40
	rowHeight  = 25
	swatchSize = 14
)

type color struct {
	r, g, b float64
}

type region struct {
	name   string
	start  uint64
	blocks uint64
	color  color
}

func regionsOf(layout verysimple.Layout) []region {
	return []region{
		{"Superblock", 0, 1, color{0.80, 0.20, 0.20}},
		{
			"Inode bitmap",
			uint64(layout.InodeBitmapStart()),
			layout.InodeBitmapBlocks,
			color{0.90, 0.60, 0.10},
		},
		{
			"Data bitmap",
			uint64(layout.DataBitmapStart()),
			layout.DataBitmapBlocks,
			color{0.90, 0.80, 0.20},
		},
		{
			"Inode table",
			uint64(layout.InodeTableStart()),
			layout.InodeTableBlocks,
			color{0.30, 0.60, 0.30},
		},
		{"Data", uint64(layout.DataStart()), layout.DataBlocks, color{0.30, 0.50, 0.80}},
	}
}

type field struct {
	name  string
	value string
}

func superblockFields(report verysimple.Report) []field {
	sb := report.Superblock
	return []field{
		{"magic", fmt.Sprintf("%#08x", sb.Magic)},
		{"disk size", fmt.Sprintf("%d bytes", sb.DiskSizeBytes)},
		{"block size", fmt.Sprintf("%d bytes", sb.BlockSizeBytes)},
		{"total blocks", fmt.Sprintf("%d", sb.TotalBlocks)},
		{"inode table blocks", fmt.Sprintf("%d", sb.InodeTableBlocks)},
		{"data blocks", fmt.Sprintf("%d", sb.DataBlocks)},
		{"data bitmap blocks", fmt.Sprintf("%d", sb.DataBitmapBlocks)},
		{"inode bitmap blocks", fmt.Sprintf("%d", sb.InodeBitmapBlocks)},
		{"max inodes", fmt.Sprintf("%d", sb.MaxInodes)},
		{"used inodes", fmt.Sprintf("%d", sb.UsedInodes)},
		{"free blocks", fmt.Sprintf("%d", sb.FreeBlocks)},
		{"blocks marked in use", fmt.Sprintf("%d", report.BlocksInUse)},
	}
}

// barTop is the y coordinate of the top of the region bar.
func barTop() float64 {
	return margin + titleSize + margin
}

func draw(report verysimple.Report) *gg.Context {
	regions := regionsOf(report.Layout)
	fields := superblockFields(report)
	height := int(barTop()) + barHeight + margin +
		len(regions)*rowHeight + margin +
		(len(fields)+1)*rowHeight + margin

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	y := float64(margin)
	dc.SetRGB(0.2, 0.4, 0.6)
	dc.DrawRectangle(0, y, width, titleSize)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	title := fmt.Sprintf(
		"VSFS image: %d blocks of %d bytes",
		report.Layout.TotalBlocks,
		report.Layout.BlockSize)
	dc.DrawStringAnchored(title, width/2, y+titleSize/2, 0.5, 0.5)

	// Every non-empty region gets at least 2 pixels so one-block regions stay
	// visible on big images.
	y = barTop()
	usable := float64(width - 2*margin)
	x := float64(margin)
	for _, r := range regions {
		if r.blocks == 0 {
			continue
		}
		w := usable * float64(r.blocks) / float64(report.Layout.TotalBlocks)
		if w < 2 {
			w = 2
		}
		if x+w > margin+usable {
			w = margin + usable - x
		}
		dc.SetRGB(r.color.r, r.color.g, r.color.b)
		dc.DrawRectangle(x, y, w, barHeight)
		dc.Fill()
		x += w
	}

	y += barHeight + margin
	for _, r := range regions {
		dc.SetRGB(r.color.r, r.color.g, r.color.b)
		dc.DrawRectangle(margin, y+(rowHeight-swatchSize)/2, swatchSize, swatchSize)
		dc.Fill()

		label := fmt.Sprintf("%s: %d blocks", r.name, r.blocks)
		if r.blocks > 0 {
			label += fmt.Sprintf(" (%d-%d)", r.start, r.start+r.blocks-1)
		}
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(label, margin+swatchSize+10, y+rowHeight/2, 0, 0.5)
		y += rowHeight
	}

	y += margin
	dc.SetRGB(0.3, 0.3, 0.3)
	dc.DrawRectangle(0, y, width, rowHeight)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored("Field", width/4, y+rowHeight/2, 0.5, 0.5)
	dc.DrawStringAnchored("Value", 3*width/4, y+rowHeight/2, 0.5, 0.5)
	y += rowHeight

	for i, f := range fields {
		if i%2 == 0 {
			dc.SetRGB(0.95, 0.95, 0.95)
		} else {
			dc.SetRGB(0.85, 0.85, 0.85)
		}
		dc.DrawRectangle(0, y, width, rowHeight)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(f.name, width/4, y+rowHeight/2, 0.5, 0.5)
		dc.DrawStringAnchored(f.value, 3*width/4, y+rowHeight/2, 0.5, 0.5)
		y += rowHeight
	}
	return dc
}

// Draw renders the map of `report` in memory.
func Draw(report verysimple.Report) (image.Image, error) {
	if report.Layout.TotalBlocks == 0 {
		return nil, vsfs.ErrInvalidArgument.WithMessage("report describes an empty image")
	}
	return draw(report).Image(), nil
}

// Render writes the map of `report` to a PNG file at `path`.
func Render(report verysimple.Report, path string) error {
	if report.Layout.TotalBlocks == 0 {
		return vsfs.ErrInvalidArgument.WithMessage("report describes an empty image")
	}

	err := draw(report).SavePNG(path)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}
