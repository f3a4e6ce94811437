// Package fuseadapter exposes a *squash4.Mount as a read-only FUSE
// filesystem, built on github.com/hanwen/go-fuse/v2. It is kept separate
// from the core reader so that linking a FUSE front-end, and the
// platform constraints that come with it, is the caller's choice, not
// squash4's.
//
// It is grounded on the teacher's inode_fuse.go/inode_linux.go, which
// wired the same go-fuse dependency directly onto its own Inode type
// through go-fuse's low-level raw API; this adapter instead builds on
// go-fuse's higher-level fs package and squash4.Mount's public surface
// (Open/ReadDir/ReadFile/ReadLink) rather than reaching into package
// internals, since nothing here needs to.
package fuseadapter

import (
	"context"
	"errors"
	"io"
	"path"
	"syscall"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	squash4 "github.com/sqfsboot/squash4"
)

// node is one FUSE inode: a path into the mounted image plus the
// squash4.Inode it currently resolves to.
type node struct {
	gofs.Inode

	m    *squash4.Mount
	ino  *squash4.Inode
	path string
}

var (
	_ gofs.InodeEmbedder  = (*node)(nil)
	_ gofs.NodeGetattrer  = (*node)(nil)
	_ gofs.NodeLookuper   = (*node)(nil)
	_ gofs.NodeReaddirer  = (*node)(nil)
	_ gofs.NodeOpener     = (*node)(nil)
	_ gofs.NodeReader     = (*node)(nil)
	_ gofs.NodeReadlinker = (*node)(nil)
)

// Root builds the root InodeEmbedder of a read-only FUSE tree over m, for
// use with github.com/hanwen/go-fuse/v2/fs.Mount.
func Root(m *squash4.Mount) (gofs.InodeEmbedder, error) {
	ino, err := m.Root()
	if err != nil {
		return nil, err
	}
	return &node{m: m, ino: ino, path: "/"}, nil
}

func (n *node) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(n.ino, &out.Attr)
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	entries, err := n.m.ReadDir(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	for _, e := range entries {
		if e.Name() != name {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, errnoFor(err)
		}
		ino := fi.Sys().(*squash4.Inode)
		fillAttr(ino, &out.Attr)

		child := &node{m: n.m, ino: ino, path: path.Join(n.path, name)}
		mode := uint32(squash4.ModeToUnix(ino.Type.Mode())) & syscall.S_IFMT
		return n.NewInode(ctx, child, gofs.StableAttr{Mode: mode}), 0
	}
	return nil, syscall.ENOENT
}

func (n *node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	entries, err := n.m.ReadDir(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, fuse.DirEntry{Name: e.Name(), Mode: uint32(squash4.ModeToUnix(e.Type())) & syscall.S_IFMT})
	}
	return gofs.NewListDirStream(list), 0
}

// Open succeeds for every regular file (and fails with EISDIR for any
// other inode): there is nothing to allocate, every Read call goes
// straight back through Mount.
func (n *node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	if !n.ino.IsRegular() {
		return nil, 0, syscall.EISDIR
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *node) Read(ctx context.Context, f gofs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	file, err := n.m.Open(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	defer file.Close()

	ra, ok := file.(io.ReaderAt)
	if !ok {
		return nil, syscall.EIO
	}
	got, err := ra.ReadAt(dest, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(dest[:got]), 0
}

func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.m.ReadLink(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	return []byte(target), 0
}

func fillAttr(ino *squash4.Inode, attr *fuse.Attr) {
	attr.Mode = squash4.ModeToUnix(ino.Type.Mode())
	if ino.IsRegular() {
		attr.Size = ino.Size()
	}
	attr.Mtime = uint64(ino.MTime)
}

func errnoFor(err error) syscall.Errno {
	switch {
	case errors.Is(err, squash4.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, squash4.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, squash4.ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, squash4.ErrTooManySymlinks):
		return syscall.ELOOP
	default:
		return syscall.EIO
	}
}
