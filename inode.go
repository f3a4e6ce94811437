package squash4

import (
	"encoding/binary"
	"fmt"
)

// inodeHeaderSize is the size in bytes of the common prologue every inode
// variant starts with: a type tag, three reserved words and a creation
// time. Permissions, uid/gid indices, link counts and the inode number
// that a full squashfs reader would also decode here are outside this
// reader's scope, the same restriction the source it was ported from
// operates under.
const inodeHeaderSize = 12

// Inode is a decoded tagged-union inode: Type selects which of dir,
// regular (or its wide long-file form) or symlink is populated.
type Inode struct {
	Type  Type
	MTime uint32

	// chunk/offset locate this inode's own entry (absolute chunk start,
	// i.e. inode table base plus the relative chunk, and in-chunk byte
	// offset), needed to resolve the
	// variable-length tail that follows a regular file's fixed fields
	// (its block-size table) or a symlink's (its target path). A
	// directory's own contents are found through dir.chunk/dir.offset
	// instead, which point at the directory table, not here.
	chunk  uint64
	offset uint16

	dir     dirInode
	regular regularInode
	symlink symlinkInode
}

type dirInode struct {
	chunk  uint32
	size   uint16
	offset uint32
}

type regularInode struct {
	long bool

	// dataStart is "a" in the source: the on-disk byte offset the file's
	// blocks (or, for a fragmented file, the bytes preceding its
	// fragment-local data) are counted from. A value of 0 is a special
	// case meaning "right after the superblock", not "offset zero".
	dataStart uint64

	fragment   uint32
	fragOffset uint32
	size       uint64

	// blockSizeOffset is the byte offset, from the start of this
	// inode's own entry, where its trailing block_size[] array begins.
	blockSizeOffset uint32
}

type symlinkInode struct {
	nameLen uint32
	// nameOffset is the byte offset, from the start of this inode's own
	// entry, where the link target's bytes begin.
	nameOffset uint32
}

// IsDir reports whether ino is a (possibly extended) directory.
func (ino *Inode) IsDir() bool { return ino.Type.IsDir() }

// IsSymlink reports whether ino is a (possibly extended) symbolic link.
func (ino *Inode) IsSymlink() bool { return ino.Type.IsSymlink() }

// IsRegular reports whether ino is a (possibly long) regular file.
func (ino *Inode) IsRegular() bool { return ino.Type.Basic() == FileType }

// Size returns the file's logical byte length. Only meaningful when
// IsRegular is true.
func (ino *Inode) Size() uint64 { return ino.regular.size }

// noFragment is the fragment index meaning "this file has no fragment; all
// of its data lives in whole blocks."
const noFragment = 0xffffffff

// readInode decodes the inode stored logicalOffset bytes into the chunk
// starting tableBase+chunkRel. This is the literal shape of every inline
// inode read in the source (make_root_node, grub_squash_iterate_dir's
// per-entry read): a 12-byte common prologue, then a type-dependent body.
func readInode(cs *ChunkStream, compID SquashComp, tableBase uint64, chunkRel uint32, logicalOffset uint16) (*Inode, error) {
	base := tableBase + uint64(chunkRel)
	cur := cs.Cursor(compID, base, uint32(logicalOffset))

	var hdr struct {
		Type  uint16
		_     [3]uint16
		MTime uint32
	}
	if err := binary.Read(cur, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("squash4: reading inode header: %w", err)
	}

	ino := &Inode{
		Type:   Type(hdr.Type),
		MTime:  hdr.MTime,
		chunk:  base,
		offset: logicalOffset,
	}

	switch ino.Type {
	case DirType:
		var body struct {
			_      uint32
			Chunk  uint32
			_      uint32
			Size   uint16
			Offset uint32
			_      uint16
		}
		if err := binary.Read(cur, binary.LittleEndian, &body); err != nil {
			return nil, fmt.Errorf("squash4: reading dir inode body: %w", err)
		}
		ino.dir = dirInode{chunk: body.Chunk, size: body.Size, offset: body.Offset}

	case FileType:
		var body struct {
			_        uint32
			Chunk    uint32
			Fragment uint32
			Offset   uint32
			Size     uint32
		}
		if err := binary.Read(cur, binary.LittleEndian, &body); err != nil {
			return nil, fmt.Errorf("squash4: reading file inode body: %w", err)
		}
		ino.regular = regularInode{
			dataStart:       uint64(body.Chunk),
			fragment:        body.Fragment,
			fragOffset:      body.Offset,
			size:            uint64(body.Size),
			blockSizeOffset: inodeHeaderSize + 20,
		}

	case XFileType:
		var body struct {
			_        uint32
			Chunk    uint64
			Size     uint64
			_        [3]uint32
			Fragment uint32
			Offset   uint32
			_        uint32
		}
		if err := binary.Read(cur, binary.LittleEndian, &body); err != nil {
			return nil, fmt.Errorf("squash4: reading long file inode body: %w", err)
		}
		ino.regular = regularInode{
			long:            true,
			dataStart:       body.Chunk,
			fragment:        body.Fragment,
			fragOffset:      body.Offset,
			size:            body.Size,
			blockSizeOffset: inodeHeaderSize + 44,
		}

	case SymlinkType:
		var body struct {
			_       uint64
			NameLen uint32
		}
		if err := binary.Read(cur, binary.LittleEndian, &body); err != nil {
			return nil, fmt.Errorf("squash4: reading symlink inode body: %w", err)
		}
		ino.symlink = symlinkInode{nameLen: body.NameLen, nameOffset: inodeHeaderSize + 12}

	default:
		return nil, fmt.Errorf("squash4: inode type %d: %w", hdr.Type, ErrUnsupportedInode)
	}

	return ino, nil
}

// readSymlinkTarget reads ino's link target. ino must satisfy IsSymlink.
func readSymlinkTarget(cs *ChunkStream, compID SquashComp, ino *Inode) (string, error) {
	if !ino.IsSymlink() {
		return "", fmt.Errorf("squash4: readSymlinkTarget on type %d: %w", ino.Type, ErrUnsupportedInode)
	}
	buf := make([]byte, ino.symlink.nameLen)
	off := uint32(ino.offset) + ino.symlink.nameOffset
	if err := cs.ReadAt(compID, ino.chunk, off, buf); err != nil {
		return "", fmt.Errorf("squash4: reading symlink target: %w", err)
	}
	return string(buf), nil
}
