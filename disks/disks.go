// Package disks holds named presets for the images the formatter can create.

package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/dchen22/vsfs"
	"github.com/dchen22/vsfs/file_systems/verysimple"
	"github.com/gocarina/gocsv"
)

// ImageProfile is a preset size and inode count for a VSFS image.
type ImageProfile struct {
	Name          string `csv:"name"`
	Slug          string `csv:"slug"`
	DiskSizeBytes uint64 `csv:"disk_size_bytes"`
	MaxFiles      uint64 `csv:"max_files"`
	// BlockSize is 0 if the profile uses [verysimple.DefaultBlockSize].
	BlockSize uint64 `csv:"block_size"`
	Notes     string `csv:"notes"`
}

// FormatOptions returns the formatter options for this profile. Only the
// geometry is filled in.
func (p *ImageProfile) FormatOptions() verysimple.Options {
	return verysimple.Options{
		DiskSizeBytes: p.DiskSizeBytes,
		MaxFiles:      p.MaxFiles,
		BlockSize:     p.BlockSize,
	}
}

// TotalBlocks gives the number of whole blocks in an image of this profile.
func (p *ImageProfile) TotalBlocks() uint64 {
	blockSize := p.BlockSize
	if blockSize == 0 {
		blockSize = verysimple.DefaultBlockSize
	}
	return p.DiskSizeBytes / blockSize
}

////////////////////////////////////////////////////////////////////////////////

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed image-profiles.csv
var imageProfilesRawCSV string
var imageProfiles map[string]ImageProfile

// GetProfile returns the profile with the given slug.
func GetProfile(slug string) (ImageProfile, error) {
	profile, ok := imageProfiles[slug]
	if ok {
		return profile, nil
	}

	msg := fmt.Sprintf("no image profile exists with slug %q", slug)
	return ImageProfile{}, vsfs.ErrInvalidArgument.WithMessage(msg)
}

// ListProfiles returns every profile, sorted by slug.
func ListProfiles() []ImageProfile {
	profiles := make([]ImageProfile, 0, len(imageProfiles))
	for _, profile := range imageProfiles {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Slug < profiles[j].Slug
	})
	return profiles
}

func parseProfiles(rawCSV string) (map[string]ImageProfile, error) {
	csvReader := csv.NewReader(strings.NewReader(rawCSV))
	csvReader.Comma = '|'
	csvReader.LazyQuotes = true

	var rows []*ImageProfile
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image profiles: %w", err)
	}

	profiles := make(map[string]ImageProfile, len(rows))
	for i, row := range rows {
		_, exists := profiles[row.Slug]
		if exists {
			return nil, fmt.Errorf(
				"duplicate definition for profile %q found on row %d", row.Slug, i+1)
		}
		profiles[row.Slug] = *row
	}
	return profiles, nil
}

func init() {
	profiles, err := parseProfiles(imageProfilesRawCSV)
	if err != nil {
		panic(err)
	}
	imageProfiles = profiles
}
