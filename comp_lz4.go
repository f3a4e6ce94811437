//go:build lz4

package squash4

import (
	"github.com/pierrec/lz4/v4"
)

// lz4Decompressor implements Decompressor using github.com/pierrec/lz4/v4,
// sourced from the rest of the retrieval pack (go-diskfs's squashfs reader
// uses the same library for its LZ4 support) rather than the teacher,
// which never needed it. Like comp_xz.go, it's only linked in when built
// with -tags lz4.
type lz4Decompressor struct{}

func (lz4Decompressor) Inflate(src []byte, skip int, dst []byte) error {
	r := lz4.NewReader(newByteReader(src))
	return skipAndFill(r, skip, dst)
}

func (d lz4Decompressor) DiskInflate(dev *BlockIO, off int64, srcLen int, skip int, dst []byte) error {
	src := make([]byte, srcLen)
	if err := dev.ReadAt(src, off); err != nil {
		return err
	}
	return d.Inflate(src, skip, dst)
}

func init() {
	RegisterDecompressor(LZ4, lz4Decompressor{})
}
