package squash4

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	stdpath "path"
	"time"

	"github.com/sqfsboot/squash4/fshelp"
)

// Mount is an open SquashFS image: a decoded superblock, the device it
// sits on, and the chunk-stream reader every metadata-table access
// (inode table, directory table, fragment table) goes through.
type Mount struct {
	sb  *Superblock
	bio *BlockIO
	cs  *ChunkStream

	// fragmentsBase is the chunk-stream base of the fragment descriptor
	// table. The superblock's FragTableStart doesn't point at the table
	// directly; squash_mount reads a single stored uint64 from there and
	// that value is the real base, one level of indirection this reader
	// resolves once at open time.
	fragmentsBase uint64

	opts options
}

// Open decodes the superblock at the start of dev and resolves the
// fragment table's indirect base, mirroring squash_mount.
func Open(dev Device, opts ...Option) (*Mount, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	bio := NewBlockIO(dev)

	buf := make([]byte, superblockSize)
	if err := bio.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("squash4: reading superblock: %w: %w", err, ErrBadSuper)
	}
	sb, err := parseSuperblock(buf)
	if err != nil {
		return nil, err
	}

	var fragBuf [8]byte
	if err := bio.ReadAt(fragBuf[:], int64(sb.FragTableStart)); err != nil {
		return nil, fmt.Errorf("squash4: reading fragment table base: %w: %w", err, ErrBadSuper)
	}

	m := &Mount{
		sb:            sb,
		bio:           bio,
		cs:            newChunkStream(bio),
		fragmentsBase: sb.order.Uint64(fragBuf[:]),
		opts:          *o,
	}
	return m, nil
}

// OpenReaderAt is a convenience wrapper around Open for callers holding a
// plain io.ReaderAt (a mapped file, typically) rather than a Device.
func OpenReaderAt(r io.ReaderAt, opts ...Option) (*Mount, error) {
	return Open(&readerAtDevice{r: r}, opts...)
}

// Root returns the image's root directory inode.
func (m *Mount) Root() (*Inode, error) {
	return readInode(m.cs, m.sb.Comp, m.sb.InodeTableStart, uint32(m.sb.rootInodeChunk()), m.sb.rootInodeOffset())
}

// Mtime returns the image's creation time, per the superblock. squashfs
// stores this as a 32-bit value, so it stops working after 2038.
func (m *Mount) Mtime() time.Time {
	return time.Unix(int64(m.sb.ModTime), 0)
}

// Superblock returns the image's decoded superblock, mostly useful for
// diagnostics (String()) or CLI tooling.
func (m *Mount) Superblock() *Superblock { return m.sb }

// resolve walks path from the root inode, following symlinks, and
// returns the inode it names.
func (m *Mount) resolve(path string) (*Inode, error) {
	root, err := m.Root()
	if err != nil {
		return nil, err
	}

	found, _, err := fshelp.FindFile(path, root, m.iterate, m.resolveSymlink)
	if err != nil {
		return nil, translateFshelpErr(err)
	}
	return found.(*Inode), nil
}

// resolveSymlink implements fshelp.ReadSymlink for *Inode nodes.
func (m *Mount) resolveSymlink(node fshelp.Node) (string, error) {
	return readSymlinkTarget(m.cs, m.sb.Comp, node.(*Inode))
}

// iterate implements fshelp.Iterate for *Inode directory nodes.
func (m *Mount) iterate(dir fshelp.Node, hook fshelp.Hook) error {
	ino := dir.(*Inode)
	it, err := m.newDirIter(ino)
	if err != nil {
		return err
	}
	for {
		entries, err := it.ReadDir(1)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		de := entries[0].(*squashDirEntry)

		var ft fshelp.FileType
		switch {
		case de.typ.IsDir():
			ft = fshelp.TypeDir
		case de.typ.IsSymlink():
			ft = fshelp.TypeSymlink
		default:
			ft = fshelp.TypeReg
		}

		node, err := de.Inode()
		if err != nil {
			return err
		}
		stop, err := hook(de.name, ft, node)
		if err != nil || stop {
			return err
		}
	}
}

func translateFshelpErr(err error) error {
	switch {
	case errors.Is(err, fshelp.ErrNotExist):
		return ErrNotExist
	case errors.Is(err, fshelp.ErrNotADirectory):
		return ErrNotADirectory
	case errors.Is(err, fshelp.ErrTooManySymlinks):
		return ErrTooManySymlinks
	default:
		return err
	}
}

// Open returns an fs.File for the file or directory at path, the way
// grub_squash_open and grub_squash_dir do for GRUB's file and directory
// hooks respectively. The returned value implements fs.ReadDirFile when
// path names a directory.
var _ fs.FS = (*Mount)(nil)

func (m *Mount) Open(path string) (fs.File, error) {
	ino, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	return m.openAsFile(ino, path), nil
}

// ReadDir lists the entries of the directory at path.
func (m *Mount) ReadDir(path string) ([]fs.DirEntry, error) {
	ino, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	if !ino.IsDir() {
		return nil, ErrNotADirectory
	}
	it, err := m.newDirIter(ino)
	if err != nil {
		return nil, err
	}
	return it.ReadDir(-1)
}

// ReadFile reads the whole contents of the regular file at path.
func (m *Mount) ReadFile(path string) ([]byte, error) {
	ino, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	if ino.IsDir() {
		return nil, ErrIsADirectory
	}
	if !ino.IsRegular() {
		return nil, fmt.Errorf("squash4: %w", ErrUnsupportedInode)
	}

	of := &OpenFile{m: m, ino: ino}
	buf := make([]byte, of.Size())
	if _, err := of.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadLink returns the raw target of the symlink at path, without
// resolving it any further — unlike Open/ReadDir/ReadFile, whose path
// resolution follows every symlink it crosses.
func (m *Mount) ReadLink(path string) (string, error) {
	dir, base := stdpath.Dir(path), stdpath.Base(path)

	parent, err := m.resolve(dir)
	if err != nil {
		return "", err
	}
	if !parent.IsDir() {
		return "", ErrNotADirectory
	}

	it, err := m.newDirIter(parent)
	if err != nil {
		return "", err
	}
	for {
		entries, err := it.ReadDir(1)
		if err != nil && err != io.EOF {
			return "", err
		}
		if len(entries) == 0 {
			return "", fmt.Errorf("%w: %s", ErrNotExist, base)
		}
		de := entries[0].(*squashDirEntry)
		if de.name != base {
			continue
		}
		ino, err := de.Inode()
		if err != nil {
			return "", err
		}
		if !ino.IsSymlink() {
			return "", fmt.Errorf("squash4: %s: %w", path, ErrUnsupportedInode)
		}
		return readSymlinkTarget(m.cs, m.sb.Comp, ino)
	}
}
