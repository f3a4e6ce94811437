package squash4

import (
	"encoding/binary"
	"fmt"
)

// blockUncompressedFlag is set in a data block or fragment size word when
// its payload needs no inflate. The same bit, SQUASH_BLOCK_UNCOMPRESSED in
// the source, is reused for both block_size[] entries and fragment
// descriptors.
const blockUncompressedFlag = 0x1000000

// fragDescSize is the on-disk size of one fragment descriptor: an 8-byte
// offset, a 4-byte size word and 4 bytes this reader never looks at.
const fragDescSize = 16

// FragmentDescriptor locates one fragment block: a packed tail region
// holding the trailing, less-than-one-block data of potentially many
// files.
type FragmentDescriptor struct {
	Offset uint64
	Size   uint32
}

func (f FragmentDescriptor) compressed() bool {
	return f.Size&blockUncompressedFlag == 0
}

func (f FragmentDescriptor) onDiskSize() uint32 {
	return f.Size &^ blockUncompressedFlag
}

// readFragmentDescriptor reads descriptor number index from the fragment
// table, which is chunk-addressed exactly like the inode and directory
// tables once its base has been resolved (see Mount.fragmentsBase).
func readFragmentDescriptor(cs *ChunkStream, compID SquashComp, fragTableBase uint64, index uint32) (*FragmentDescriptor, error) {
	var raw struct {
		Offset uint64
		Size   uint32
		_      uint32
	}
	cur := cs.Cursor(compID, fragTableBase, index*fragDescSize)
	if err := binary.Read(cur, binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("squash4: reading fragment descriptor %d: %w", index, err)
	}
	return &FragmentDescriptor{Offset: raw.Offset, Size: raw.Size}, nil
}
