package squash4

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"
)

// OpenFile is a read-only handle to one regular file's data. It mirrors
// the source's grub_squash_cache_inode: the decoded inode plus a
// block-size table that is built once, on first read, and then kept for
// the handle's remaining lifetime — the one piece of state this reader
// caches per open file, and no more (see SPEC_FULL.md on caching).
type OpenFile struct {
	m   *Mount
	ino *Inode

	blockSizes     []uint32
	cumulatedSizes []uint64
}

var _ io.ReaderAt = (*OpenFile)(nil)

// Size returns the file's logical length.
func (f *OpenFile) Size() int64 { return int64(f.ino.regular.size) }

// ReadAt implements io.ReaderAt. A read that runs past Size is truncated
// and reported with io.EOF, per the interface's contract.
func (f *OpenFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("squash4: negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	size := f.Size()
	if off >= size {
		return 0, io.EOF
	}
	n := len(p)
	if int64(n) > size-off {
		n = int(size - off)
	}
	if err := f.readData(uint64(off), p[:n]); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// readData is grub_squash_read_data: a file with a fragment always
// satisfies the *entire* read from the fragment block, never just the
// trailing partial block a caller might expect — the source routes every
// read of a fragmented file through the fragment branch unconditionally,
// and this reader preserves that by default. Only with
// StrictFragmentRouting does a read that lies entirely within the file's
// whole blocks go to directRead instead.
func (f *OpenFile) readData(off uint64, dst []byte) error {
	r := &f.ino.regular
	if r.fragment == noFragment {
		return f.directRead(off, dst)
	}

	if f.m.opts.strictFragmentRouting {
		blockSize := uint64(f.m.sb.BlockSize)
		fullBlocksSize := r.size - r.size%blockSize
		if off+uint64(len(dst)) <= fullBlocksSize {
			return f.directRead(off, dst)
		}
	}

	frag, err := readFragmentDescriptor(f.m.cs, f.m.sb.Comp, f.m.fragmentsBase, r.fragment)
	if err != nil {
		return err
	}

	a := frag.Offset + r.dataStart
	b := uint64(r.fragOffset) + off

	if !frag.compressed() {
		return f.m.bio.ReadAt(dst, int64(a+b))
	}
	dc, err := lookupDecompressor(f.m.sb.Comp)
	if err != nil {
		return err
	}
	return dc.DiskInflate(f.m.bio, int64(a), int(frag.onDiskSize()), int(b), dst)
}

// directRead is direct_read: every byte it is asked for lives in one of
// the file's regular, block_size-sized blocks, either because the file
// has no fragment or because StrictFragmentRouting confined the read to
// the whole blocks.
func (f *OpenFile) directRead(off uint64, dst []byte) error {
	if err := f.ensureBlockSizes(); err != nil {
		return err
	}

	a := f.ino.regular.dataStart
	if a == 0 {
		// 0 isn't a real offset, it means "just past the superblock" —
		// the source reuses it as a sentinel for "never assigned".
		a = superblockSize
	}

	blockSize := uint64(f.m.sb.BlockSize)
	i := off / blockSize
	cumulated := blockSize * i

	for cumulated < off+uint64(len(dst)) {
		boff := off - cumulated
		read := blockSize - boff
		if read > uint64(len(dst)) {
			read = uint64(len(dst))
		}

		bs := f.blockSizes[i]
		blockAbs := int64(a + f.cumulatedSizes[i])

		switch {
		case bs == 0:
			// Sparse hole: never stored on disk, reads as zeros.
			for j := range dst[:read] {
				dst[j] = 0
			}
		case bs&blockUncompressedFlag != 0:
			if err := f.m.bio.ReadAt(dst[:read], blockAbs+int64(boff)); err != nil {
				return err
			}
		default:
			dc, err := lookupDecompressor(f.m.sb.Comp)
			if err != nil {
				return err
			}
			if err := dc.DiskInflate(f.m.bio, blockAbs, int(bs&^blockUncompressedFlag), int(boff), dst[:read]); err != nil {
				return err
			}
		}

		off += read
		dst = dst[read:]
		cumulated += blockSize
		i++
	}
	return nil
}

// ensureBlockSizes lazily loads and decompresses-as-needed the
// block_size[] array trailing this file's inode entry, then derives the
// cumulated on-disk offset of each block so directRead never has to
// re-walk earlier blocks to find where block i starts.
func (f *OpenFile) ensureBlockSizes() error {
	if f.blockSizes != nil {
		return nil
	}
	blockSize := uint64(f.m.sb.BlockSize)
	size := f.ino.regular.size
	var total uint64
	if f.ino.regular.fragment == noFragment {
		total = (size + blockSize - 1) / blockSize
	} else {
		// A fragmented file's tail lives in the fragment block, not a
		// stored regular block, so only its whole blocks are present
		// here — only reachable via StrictFragmentRouting.
		total = size / blockSize
	}
	if total == 0 {
		f.blockSizes = []uint32{}
		f.cumulatedSizes = []uint64{}
		return nil
	}

	raw := make([]byte, total*4)
	off := uint32(f.ino.offset) + f.ino.regular.blockSizeOffset
	if err := f.m.cs.ReadAt(f.m.sb.Comp, f.ino.chunk, off, raw); err != nil {
		return fmt.Errorf("squash4: reading block size table: %w", err)
	}

	sizes := make([]uint32, total)
	cumulated := make([]uint64, total)
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint32(raw[i*4:])
		if i > 0 {
			cumulated[i] = cumulated[i-1] + uint64(sizes[i-1]&^blockUncompressedFlag)
		}
	}
	f.blockSizes = sizes
	f.cumulatedSizes = cumulated
	return nil
}

// File is a convenience wrapper exposing an open regular file as an
// fs.File (and an io.Seeker, via the embedded SectionReader).
type File struct {
	*io.SectionReader
	of   *OpenFile
	name string
}

// FileDir exposes an open directory as an fs.ReadDirFile.
type FileDir struct {
	ino  *Inode
	name string
	m    *Mount
	it   *DirIter
}

type fileinfo struct {
	ino  *Inode
	name string
}

var _ fs.File = (*File)(nil)
var _ io.ReaderAt = (*File)(nil)
var _ fs.ReadDirFile = (*FileDir)(nil)
var _ fs.FileInfo = (*fileinfo)(nil)

// openAsFile returns an fs.File for ino. Directories get a FileDir
// (fs.ReadDirFile); everything else gets a File backed by a
// SectionReader over a fresh OpenFile.
func (m *Mount) openAsFile(ino *Inode, name string) fs.File {
	if ino.IsDir() {
		return &FileDir{ino: ino, name: name, m: m}
	}
	of := &OpenFile{m: m, ino: ino}
	return &File{SectionReader: io.NewSectionReader(of, 0, of.Size()), of: of, name: name}
}

// Stat returns the open file's metadata.
func (f *File) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(f.name), ino: f.of.ino}, nil
}

// Sys returns the *Inode backing this file.
func (f *File) Sys() any { return f.of.ino }

// Close does nothing: this reader holds no handle that needs releasing.
func (f *File) Close() error { return nil }

// Read on a directory is invalid per fs.File's contract; use ReadDir.
func (d *FileDir) Read(p []byte) (int, error) {
	return 0, fs.ErrInvalid
}

func (d *FileDir) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(d.name), ino: d.ino}, nil
}

func (d *FileDir) Sys() any { return d.ino }

func (d *FileDir) Close() error {
	d.it = nil
	return nil
}

func (d *FileDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.it == nil {
		it, err := d.m.newDirIter(d.ino)
		if err != nil {
			return nil, err
		}
		d.it = it
	}
	return d.it.ReadDir(n)
}

func (fi *fileinfo) Name() string { return fi.name }

func (fi *fileinfo) Size() int64 {
	if fi.ino.IsRegular() {
		return int64(fi.ino.Size())
	}
	return 0
}

func (fi *fileinfo) Mode() fs.FileMode { return fi.ino.Type.Mode() }

// ModTime returns the inode's last-modified time. squashfs stores this as
// an unsigned 32-bit value, so it stops working after 2106.
func (fi *fileinfo) ModTime() time.Time { return time.Unix(int64(fi.ino.MTime), 0) }

func (fi *fileinfo) IsDir() bool { return fi.ino.IsDir() }

func (fi *fileinfo) Sys() any { return fi.ino }
