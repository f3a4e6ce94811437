package squash4

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Decompressor is the decompression collaborator consumed by ChunkStream,
// FileReader and the fragment reader. It matches the two shapes the source
// calls through: Inflate decompresses an in-memory buffer, discarding the
// first skip bytes of output and delivering the next len(dst) bytes;
// DiskInflate does the same but reads the compressed bytes itself, straight
// off the device, so large blocks never need to be buffered whole by the
// caller first.
type Decompressor interface {
	// Inflate decompresses src, skipping skip bytes of decompressed output
	// and copying the following len(dst) bytes into dst.
	Inflate(src []byte, skip int, dst []byte) error

	// DiskInflate decompresses srcLen compressed bytes read from dev at
	// off, skipping skip bytes of decompressed output and copying the
	// following len(dst) bytes into dst.
	DiskInflate(dev *BlockIO, off int64, srcLen int, skip int, dst []byte) error
}

// zlibDecompressor implements Decompressor on top of klauspost/compress's
// zlib, a drop-in for the standard library's compress/zlib used here because
// it's the decompressor already pulled in by the teacher and the rest of the
// retrieval pack (go-diskfs, distr1-distri/pgzip) for exactly this job.
type zlibDecompressor struct{}

// DefaultDecompressor is the always-available zlib codec; SquashFS 4 images
// built with the default mksquashfs compressor need nothing else.
var DefaultDecompressor Decompressor = zlibDecompressor{}

func (zlibDecompressor) Inflate(src []byte, skip int, dst []byte) error {
	zr, err := zlib.NewReader(newByteReader(src))
	if err != nil {
		return fmt.Errorf("squash4: zlib init: %w: %w", err, ErrCorrupt)
	}
	defer zr.Close()
	return skipAndFill(zr, skip, dst)
}

func (zlibDecompressor) DiskInflate(dev *BlockIO, off int64, srcLen int, skip int, dst []byte) error {
	src := make([]byte, srcLen)
	if err := dev.ReadAt(src, off); err != nil {
		return err
	}
	return zlibDecompressor{}.Inflate(src, skip, dst)
}

// skipAndFill discards skip bytes of r's output then fills dst completely,
// matching grub_zlib_decompress/grub_zlib_disk_read's "skip_out, dst_len"
// contract.
func skipAndFill(r io.Reader, skip int, dst []byte) error {
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
			return fmt.Errorf("squash4: skipping %d decompressed bytes: %w: %w", skip, err, ErrCorrupt)
		}
	}
	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("squash4: inflating %d bytes: %w: %w", len(dst), err, ErrCorrupt)
	}
	return nil
}

// byteReader is a minimal io.Reader over a byte slice; avoids pulling in
// bytes.Reader just for its Read method where a ReadSeeker isn't needed.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader { return &byteReader{buf: buf} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}

// compressorRegistry lets optional build-tag-gated decompressors (XZ, LZ4)
// register themselves against the SquashComp id read from the superblock,
// the same extensibility point the teacher's comp.go/comp_xz.go establish.
var compressorRegistry = map[SquashComp]Decompressor{
	GZip: DefaultDecompressor,
}

// RegisterDecompressor makes a Decompressor available for a given SquashFS
// compression id. Called from optional build-tag files (comp_xz.go,
// comp_lz4.go); core callers never need it for default zlib images.
func RegisterDecompressor(id SquashComp, d Decompressor) {
	compressorRegistry[id] = d
}

func lookupDecompressor(id SquashComp) (Decompressor, error) {
	d, ok := compressorRegistry[id]
	if !ok {
		return nil, fmt.Errorf("squash4: no decompressor registered for %s: %w", id, ErrCorrupt)
	}
	return d, nil
}
