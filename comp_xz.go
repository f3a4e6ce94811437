//go:build xz

package squash4

import (
	"github.com/ulikunitz/xz"
)

// xzDecompressor implements Decompressor using github.com/ulikunitz/xz,
// the teacher's optional XZ plugin dependency. It is only linked in when
// built with -tags xz, since the default zlib codec covers the common
// mksquashfs output and pulling in a second compression library costs
// boot-loader-sized binaries real space.
type xzDecompressor struct{}

func (xzDecompressor) Inflate(src []byte, skip int, dst []byte) error {
	r, err := xz.NewReader(newByteReader(src))
	if err != nil {
		return err
	}
	return skipAndFill(r, skip, dst)
}

func (d xzDecompressor) DiskInflate(dev *BlockIO, off int64, srcLen int, skip int, dst []byte) error {
	src := make([]byte, srcLen)
	if err := dev.ReadAt(src, off); err != nil {
		return err
	}
	return d.Inflate(src, skip, dst)
}

func init() {
	RegisterDecompressor(XZ, xzDecompressor{})
}
