package squash4

import (
	"fmt"
)

// chunkLogicalSize is the fixed logical size every metadata chunk decodes
// to (except possibly the very last chunk of a stream, which is still
// addressed as if it were this size).
const chunkLogicalSize = 8192

// chunkUncompressedFlag is set in the high bit of a chunk's 2-byte header
// when its payload is stored as-is.
const chunkUncompressedFlag = 0x8000

// chunkSizeMask extracts the on-disk payload length from a chunk header.
const chunkSizeMask = 0x7fff

// ChunkStream is the streaming reader across the chain of SquashFS metadata
// chunks: inode table, directory table and fragment-descriptor table are all
// addressed this way. It performs no caching of its own — every ReadAt call
// walks forward from base itself. Callers that read several adjacent
// fields (an inode, a directory header, a run of directory entries) do so
// through a Cursor, which tracks the logical offset for them; each Cursor
// read is still a separate ReadAt that repeats the walk from base.
type ChunkStream struct {
	bio  *BlockIO
	comp func(id SquashComp) (Decompressor, error)
}

func newChunkStream(bio *BlockIO) *ChunkStream {
	return &ChunkStream{bio: bio, comp: lookupDecompressor}
}

// ReadAt delivers len(dst) bytes of logical content starting logicalOffset
// bytes past baseChunkAbs, transparently walking the chunk chain and
// decompressing as needed. This is the literal read_chunk() algorithm from
// the source: advance chunk-by-chunk while the requested offset lands past
// the current chunk's 8192 logical bytes, then copy or inflate a slice of
// the chunk that remains.
func (cs *ChunkStream) ReadAt(compID SquashComp, baseChunkAbs uint64, logicalOffset uint32, dst []byte) error {
	chunkStart := int64(baseChunkAbs)
	offset := logicalOffset

	for len(dst) > 0 {
		var hdr [2]byte
		for {
			if err := cs.bio.ReadAt(hdr[:], chunkStart); err != nil {
				return fmt.Errorf("squash4: reading chunk header at %d: %w", chunkStart, err)
			}
			header := uint16(hdr[0]) | uint16(hdr[1])<<8
			if offset < chunkLogicalSize {
				break
			}
			offset -= chunkLogicalSize
			chunkStart += 2 + int64(header&chunkSizeMask)
		}

		hdr2 := uint16(hdr[0]) | uint16(hdr[1])<<8
		onDiskLen := int(hdr2 & chunkSizeMask)
		uncompressed := hdr2&chunkUncompressedFlag != 0

		csize := chunkLogicalSize - int(offset)
		if csize > len(dst) {
			csize = len(dst)
		}

		if uncompressed {
			if err := cs.bio.ReadAt(dst[:csize], chunkStart+2+int64(offset)); err != nil {
				return fmt.Errorf("squash4: reading uncompressed chunk payload at %d: %w", chunkStart, err)
			}
		} else {
			dc, err := cs.comp(compID)
			if err != nil {
				return err
			}
			if err := dc.DiskInflate(cs.bio, chunkStart+2, onDiskLen, int(offset), dst[:csize]); err != nil {
				return err
			}
		}

		dst = dst[csize:]
		offset += uint32(csize)
	}
	return nil
}

// Cursor is a sequential read position within a ChunkStream, used to decode
// a run of fields (an inode, a directory header + entries, a block-size
// array) without the caller having to track the logical offset by hand.
// It implements io.Reader so binary.Read(cursor, order, &field) works
// directly on it, the pattern the teacher's tableReader/inodeReader both
// use.
type Cursor struct {
	cs     *ChunkStream
	compID SquashComp
	base   uint64
	offset uint32
}

// Cursor returns a Cursor over cs starting logicalOffset bytes past
// baseChunkAbs.
func (cs *ChunkStream) Cursor(compID SquashComp, baseChunkAbs uint64, logicalOffset uint32) *Cursor {
	return &Cursor{cs: cs, compID: compID, base: baseChunkAbs, offset: logicalOffset}
}

func (c *Cursor) Read(p []byte) (int, error) {
	if err := c.cs.ReadAt(c.compID, c.base, c.offset, p); err != nil {
		return 0, err
	}
	c.offset += uint32(len(p))
	return len(p), nil
}

// Offset reports the cursor's current logical offset past its base chunk,
// useful for computing how many bytes a sequence of reads consumed.
func (c *Cursor) Offset() uint32 {
	return c.offset
}
