package squash4

import (
	"fmt"
	"io"
)

// SectorSize is the sector granularity the Device interface reads at, taken
// from the boot-loader block device contract this reader was ported from.
const SectorSize = 512

// Device is the block-level collaborator consumed by BlockIO. It mirrors
// the interface described by the external block device: reads are always
// sector-addressed, with an offset and length that may cross into following
// sectors.
type Device interface {
	ReadSectors(sector uint64, offsetInSector, length int, dst []byte) error
}

// BlockIO provides sector-granular random reads over a backing device. It is
// the thin adapter between the byte-oriented chunk/inode/file readers above
// it and whatever actually owns the disk.
//
// Two constructors are provided: NewBlockIO wraps a Device that already
// speaks the sector-addressed contract (the normal boot-loader case), and
// NewBlockIOFromReaderAt wraps a plain io.ReaderAt (the normal case when
// testing against a regular file or exercising the reader from a hosted Go
// program), performing the sector split itself so both paths share the same
// downstream code.
type BlockIO struct {
	dev Device
}

func NewBlockIO(dev Device) *BlockIO {
	return &BlockIO{dev: dev}
}

func NewBlockIOFromReaderAt(r io.ReaderAt) *BlockIO {
	return &BlockIO{dev: &readerAtDevice{r: r}}
}

// ReadAt reads len(dst) bytes starting at absolute byte offset off, splitting
// the request into a sector number and an in-sector offset the way the
// source's grub_disk_read call sites do at every call:
//
//	sector := off / SectorSize
//	inSector := off % SectorSize
func (b *BlockIO) ReadAt(dst []byte, off int64) error {
	if off < 0 {
		return fmt.Errorf("squash4: negative offset %d: %w", off, ErrBadSuper)
	}
	sector := uint64(off) / SectorSize
	inSector := int(uint64(off) % SectorSize)
	return b.dev.ReadSectors(sector, inSector, len(dst), dst)
}

// readerAtDevice adapts a plain io.ReaderAt to the sector-addressed Device
// contract, for hosted use (tests, CLI tools) where there's no real block
// device underneath, only a regular file or in-memory buffer.
type readerAtDevice struct {
	r io.ReaderAt
}

func (d *readerAtDevice) ReadSectors(sector uint64, offsetInSector, length int, dst []byte) error {
	off := int64(sector)*SectorSize + int64(offsetInSector)
	_, err := io.ReadFull(io.NewSectionReader(d.r, off, int64(length)), dst[:length])
	if err != nil {
		return fmt.Errorf("squash4: device read at %d: %w", off, err)
	}
	return nil
}
