package verysimple

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dchen22/vsfs"
	"github.com/noxer/bytewriter"
)

// MaxNameLength is the size of the name buffer in a directory entry. Names are
// not null-terminated when they fill it.
const MaxNameLength = 56

// DirentSize is the size of one on-disk directory entry.
const DirentSize = 64

const (
	DirentTypeUnknown   uint8 = 0
	DirentTypeFile      uint8 = 1
	DirentTypeDirectory uint8 = 2
)

// RawDirent is the on-disk representation of a directory entry.
type RawDirent struct {
	Inumber      uint32
	RecordLength uint16
	NameLength   uint8
	Type         uint8
	Name         [MaxNameLength]byte
}

// NewDirent builds a directory entry pointing at `inumber`.
func NewDirent(inumber uint32, name string, direntType uint8) (RawDirent, error) {
	if len(name) == 0 {
		return RawDirent{}, vsfs.ErrInvalidArgument.WithMessage("directory entry name is empty")
	}
	if len(name) > MaxNameLength {
		msg := fmt.Sprintf("name can be at most %d bytes, got %d: %q", MaxNameLength, len(name), name)
		return RawDirent{}, vsfs.ErrNameTooLong.WithMessage(msg)
	}

	dirent := RawDirent{
		Inumber:      inumber,
		RecordLength: DirentSize,
		NameLength:   uint8(len(name)),
		Type:         direntType,
	}
	copy(dirent.Name[:], name)
	return dirent, nil
}

// NameString returns the entry's name without padding.
func (dirent *RawDirent) NameString() string {
	return string(dirent.Name[:dirent.NameLength])
}

// Encode writes the entry into the first [DirentSize] bytes of `buffer`.
func (dirent *RawDirent) Encode(buffer []byte) error {
	if len(buffer) < DirentSize {
		msg := fmt.Sprintf("need %d bytes for a directory entry, got %d", DirentSize, len(buffer))
		return vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	err := binary.Write(bytewriter.New(buffer), binary.LittleEndian, dirent)
	if err != nil {
		return vsfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// DecodeDirent reads a directory entry from the first [DirentSize] bytes of
// `buffer`, checking the length fields.
func DecodeDirent(buffer []byte) (RawDirent, error) {
	var dirent RawDirent
	if len(buffer) < DirentSize {
		msg := fmt.Sprintf("need %d bytes for a directory entry, got %d", DirentSize, len(buffer))
		return dirent, vsfs.ErrInvalidArgument.WithMessage(msg)
	}

	err := binary.Read(bytes.NewReader(buffer[:DirentSize]), binary.LittleEndian, &dirent)
	if err != nil {
		return dirent, vsfs.ErrIOFailed.Wrap(err)
	}

	if dirent.NameLength > MaxNameLength {
		msg := fmt.Sprintf(
			"corruption detected: name length %d exceeds %d", dirent.NameLength, MaxNameLength)
		return dirent, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}
	if dirent.RecordLength < DirentSize {
		msg := fmt.Sprintf(
			"corruption detected: record length %d is shorter than %d",
			dirent.RecordLength,
			DirentSize)
		return dirent, vsfs.ErrFileSystemCorrupted.WithMessage(msg)
	}
	return dirent, nil
}
