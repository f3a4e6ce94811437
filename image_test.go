package squash4_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"

	squash4 "github.com/sqfsboot/squash4"
)

// This file builds minimal, valid SquashFS 4 images by hand, byte by byte,
// so the rest of the test suite can exercise the reader without a
// mksquashfs-built fixture checked into the repo. The layout mirrors
// grub_squash_super/grub_squash_inode/grub_squash_dirent_header exactly —
// see super.go, inode.go, dir.go and fragment.go for the decode side of
// the same bytes.

// Three values mirrored here from fragment.go/inode.go/super.go's unexported
// constants: they're part of the on-disk format (SQUASH_BLOCK_UNCOMPRESSED,
// the no-fragment index, the superblock size), not
// package internals, so duplicating the literal in test code is a format
// fact, not a leak of implementation detail.
const (
	blockUncompressedBit = 0x1000000
	noFragmentTest        = 0xffffffff
	testDataStart         = 96 // == superblockSize; data region starts right after the superblock
)

type fsBuilder struct {
	blockSize uint32

	data  bytes.Buffer
	inode bytes.Buffer
	dir   bytes.Buffer
	frag  bytes.Buffer

	fragCount uint32
}

func newFSBuilder(blockSize uint32) *fsBuilder {
	return &fsBuilder{blockSize: blockSize}
}

func zlibCompress(p []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(p)
	w.Close()
	return buf.Bytes()
}

// addBlock appends a regular data block (compressed or not) and returns its
// offset within the data region (add testDataStart for the absolute
// on-disk offset) plus the block-size word to store in the file's inode.
func (b *fsBuilder) addBlock(content []byte, compressed bool) (offsetInData int, word uint32) {
	offsetInData = b.data.Len()
	if compressed {
		payload := zlibCompress(content)
		word = uint32(len(payload))
		b.data.Write(payload)
	} else {
		word = uint32(len(content)) | blockUncompressedBit
		b.data.Write(content)
	}
	return
}

// sparseBlockWord is the block-size word for a block that was never
// written: squash4 treats this as a hole of logical zeros.
func sparseBlockWord() uint32 { return 0 }

func (b *fsBuilder) writeDirInode(mtime uint32, dirOffset uint32, dirSize uint16) uint16 {
	off := uint16(b.inode.Len())
	binary.Write(&b.inode, binary.LittleEndian, uint16(squash4.DirType))
	binary.Write(&b.inode, binary.LittleEndian, [3]uint16{})
	binary.Write(&b.inode, binary.LittleEndian, mtime)
	binary.Write(&b.inode, binary.LittleEndian, uint32(0)) // dummy1
	binary.Write(&b.inode, binary.LittleEndian, uint32(0)) // dir chunk, always 0 here
	binary.Write(&b.inode, binary.LittleEndian, uint32(0)) // dummy2
	binary.Write(&b.inode, binary.LittleEndian, dirSize)
	binary.Write(&b.inode, binary.LittleEndian, dirOffset)
	binary.Write(&b.inode, binary.LittleEndian, uint16(0)) // dummy3
	return off
}

func (b *fsBuilder) writeFileInode(mtime, dataStart, fragment, fragOffset, size uint32, blockWords []uint32) uint16 {
	off := uint16(b.inode.Len())
	binary.Write(&b.inode, binary.LittleEndian, uint16(squash4.FileType))
	binary.Write(&b.inode, binary.LittleEndian, [3]uint16{})
	binary.Write(&b.inode, binary.LittleEndian, mtime)
	binary.Write(&b.inode, binary.LittleEndian, uint32(0))
	binary.Write(&b.inode, binary.LittleEndian, dataStart)
	binary.Write(&b.inode, binary.LittleEndian, fragment)
	binary.Write(&b.inode, binary.LittleEndian, fragOffset)
	binary.Write(&b.inode, binary.LittleEndian, size)
	for _, w := range blockWords {
		binary.Write(&b.inode, binary.LittleEndian, w)
	}
	return off
}

func (b *fsBuilder) writeLongFileInode(mtime uint32, dataStart, size uint64, fragment, fragOffset uint32, blockWords []uint32) uint16 {
	off := uint16(b.inode.Len())
	binary.Write(&b.inode, binary.LittleEndian, uint16(squash4.XFileType))
	binary.Write(&b.inode, binary.LittleEndian, [3]uint16{})
	binary.Write(&b.inode, binary.LittleEndian, mtime)
	binary.Write(&b.inode, binary.LittleEndian, uint32(0))
	binary.Write(&b.inode, binary.LittleEndian, dataStart)
	binary.Write(&b.inode, binary.LittleEndian, size)
	binary.Write(&b.inode, binary.LittleEndian, [3]uint32{})
	binary.Write(&b.inode, binary.LittleEndian, fragment)
	binary.Write(&b.inode, binary.LittleEndian, fragOffset)
	binary.Write(&b.inode, binary.LittleEndian, uint32(0))
	for _, w := range blockWords {
		binary.Write(&b.inode, binary.LittleEndian, w)
	}
	return off
}

func (b *fsBuilder) writeSymlinkInode(mtime uint32, target string) uint16 {
	off := uint16(b.inode.Len())
	binary.Write(&b.inode, binary.LittleEndian, uint16(squash4.SymlinkType))
	binary.Write(&b.inode, binary.LittleEndian, [3]uint16{})
	binary.Write(&b.inode, binary.LittleEndian, mtime)
	binary.Write(&b.inode, binary.LittleEndian, uint64(0))
	binary.Write(&b.inode, binary.LittleEndian, uint32(len(target)))
	b.inode.WriteString(target)
	return off
}

// addFragment appends a fragment-resident block (stored in the shared data
// region, exactly like a regular block) and registers its descriptor,
// returning the descriptor's index for use as a file inode's Fragment
// field.
func (b *fsBuilder) addFragment(content []byte, compressed bool) uint32 {
	offsetInData, word := b.addBlock(content, compressed)

	idx := b.fragCount
	b.fragCount++

	binary.Write(&b.frag, binary.LittleEndian, uint64(testDataStart+offsetInData))
	binary.Write(&b.frag, binary.LittleEndian, word)
	binary.Write(&b.frag, binary.LittleEndian, uint32(0))
	return idx
}

type direntry struct {
	name      string
	typ       squash4.Type
	inoOffset uint16
}

func (b *fsBuilder) writeDirContent(entries []direntry) (offset uint32, size uint16) {
	offset = uint32(b.dir.Len())
	binary.Write(&b.dir, binary.LittleEndian, uint32(len(entries)-1))
	binary.Write(&b.dir, binary.LittleEndian, uint64(0))
	for _, e := range entries {
		binary.Write(&b.dir, binary.LittleEndian, e.inoOffset)
		binary.Write(&b.dir, binary.LittleEndian, uint16(0))
		binary.Write(&b.dir, binary.LittleEndian, uint16(e.typ))
		binary.Write(&b.dir, binary.LittleEndian, uint16(len(e.name)-1))
		b.dir.WriteString(e.name)
	}
	contentLen := uint32(b.dir.Len()) - offset
	size = uint16(contentLen + 3) // the "-3" quirk dir.go's iterator undoes
	return
}

func writeOneChunk(buf *bytes.Buffer, payload []byte, compress bool) {
	if compress {
		compressed := zlibCompress(payload)
		hdr := uint16(len(compressed)) // high bit clear: compressed
		binary.Write(buf, binary.LittleEndian, hdr)
		buf.Write(compressed)
		return
	}
	hdr := uint16(len(payload)) | 0x8000
	binary.Write(buf, binary.LittleEndian, hdr)
	buf.Write(payload)
}

// writeMetaChunk writes payload as a single metadata chunk, uncompressed.
// Only valid for payload up to chunkLogicalSize bytes; every table this
// builder writes below chunkLogicalSize uses this directly, the same way
// a small real squashfs image's tables fit in one chunk each.
func writeMetaChunk(buf *bytes.Buffer, payload []byte) {
	if len(payload) > chunkLogicalSizeTest {
		panic("writeMetaChunk: payload exceeds one chunk; use writeChunkedTable")
	}
	writeOneChunk(buf, payload, false)
}

// writeCompressedMetaChunk writes payload through zlib, so ChunkStream's
// decompression branch gets exercised instead of the raw-copy path every
// other table in this builder takes.
func writeCompressedMetaChunk(buf *bytes.Buffer, payload []byte) {
	if len(payload) > chunkLogicalSizeTest {
		panic("writeCompressedMetaChunk: payload exceeds one chunk; use writeChunkedTable")
	}
	writeOneChunk(buf, payload, true)
}

// chunkLogicalSizeTest mirrors chunkstream.go's unexported chunkLogicalSize:
// the fixed logical size (8192 bytes) every metadata chunk but the last one
// in a stream decodes to. Duplicated here as a format fact, the same way
// blockUncompressedBit is.
const chunkLogicalSizeTest = 8192

// writeChunkedTable splits payload across as many real, independently
// chunk-framed metadata chunks as needed, each carrying exactly
// chunkLogicalSizeTest logical bytes except the last — exercising
// ChunkStream.ReadAt's chunk-walk loop instead of always taking its
// single-chunk fast path.
func writeChunkedTable(buf *bytes.Buffer, payload []byte) {
	for len(payload) > 0 {
		n := len(payload)
		if n > chunkLogicalSizeTest {
			n = chunkLogicalSizeTest
		}
		writeOneChunk(buf, payload[:n], false)
		payload = payload[n:]
	}
}

func (b *fsBuilder) build(rootOffset uint16) []byte {
	return b.buildWith(rootOffset, dirPlain)
}

// buildDirTableCompressed is build, except the directory table's single
// metadata chunk is zlib-compressed rather than stored raw.
func (b *fsBuilder) buildDirTableCompressed(rootOffset uint16) []byte {
	return b.buildWith(rootOffset, dirCompressed)
}

// buildDirTableChunked is build, except the directory table is split
// across as many chunkLogicalSizeTest-sized metadata chunks as its
// content needs, instead of always fitting in one.
func (b *fsBuilder) buildDirTableChunked(rootOffset uint16) []byte {
	return b.buildWith(rootOffset, dirChunked)
}

type dirTableMode int

const (
	dirPlain dirTableMode = iota
	dirCompressed
	dirChunked
)

func (b *fsBuilder) buildWith(rootOffset uint16, mode dirTableMode) []byte {
	var img bytes.Buffer
	img.Write(make([]byte, 96))
	img.Write(b.data.Bytes())

	inodeTableStart := uint64(img.Len())
	writeMetaChunk(&img, b.inode.Bytes())

	dirTableStart := uint64(img.Len())
	switch mode {
	case dirCompressed:
		writeCompressedMetaChunk(&img, b.dir.Bytes())
	case dirChunked:
		writeChunkedTable(&img, b.dir.Bytes())
	default:
		writeMetaChunk(&img, b.dir.Bytes())
	}

	fragTableStart := uint64(img.Len())
	img.Write(make([]byte, 8))
	fragmentsBase := uint64(img.Len())
	writeMetaChunk(&img, b.frag.Bytes())

	raw := img.Bytes()
	binary.LittleEndian.PutUint64(raw[fragTableStart:], fragmentsBase)

	putUint32 := binary.LittleEndian.PutUint32
	putUint16 := binary.LittleEndian.PutUint16
	putUint64 := binary.LittleEndian.PutUint64

	putUint32(raw[0:], 0x73717368) // "hsqs"
	putUint32(raw[4:], 0)          // InodeCount (unused)
	putUint32(raw[8:], 0)          // ModTime
	putUint32(raw[12:], b.blockSize)
	putUint32(raw[16:], b.fragCount)
	putUint16(raw[20:], uint16(squash4.GZip))
	putUint16(raw[22:], 0) // BlockLog (unused)
	putUint16(raw[24:], 0) // Flags
	putUint16(raw[26:], 0) // IdCount
	putUint16(raw[28:], 4) // VMajor
	putUint16(raw[30:], 0) // VMinor
	putUint64(raw[32:], uint64(rootOffset))
	putUint64(raw[40:], uint64(len(raw)))
	putUint64(raw[48:], 0) // IdTableStart
	putUint64(raw[56:], 0) // XattrIdTableStart
	putUint64(raw[64:], inodeTableStart)
	putUint64(raw[72:], dirTableStart)
	putUint64(raw[80:], fragTableStart)
	putUint64(raw[88:], 0) // ExportTableStart

	return raw
}
