package squash4

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrBadSuper is returned when the superblock magic doesn't match, or a
	// mount-time read falls outside the device. The source reports both
	// cases identically, as "not a squash4".
	ErrBadSuper = errors.New("squash4: not a squashfs 4 filesystem")

	// ErrCorrupt is returned for decompression failures and for a
	// compression id with no registered decompressor. Chunk headers and
	// block-size words are not validated; a malformed one surfaces as a
	// device read or decompression error instead.
	ErrCorrupt = errors.New("squash4: corrupt metadata or data block")

	// ErrUnsupportedInode is returned when an inode type other than
	// Dir/Regular/LongRegular/Symlink is read where a fully-decoded inode
	// is required (device nodes, fifos, sockets).
	ErrUnsupportedInode = errors.New("squash4: unsupported inode type")

	// ErrNotExist is returned by path resolution when a component of the
	// path doesn't exist.
	ErrNotExist = errors.New("squash4: no such file or directory")

	// ErrIsADirectory is returned when ReadFile is asked for a regular
	// file but the resolved path names a directory.
	ErrIsADirectory = errors.New("squash4: is a directory")

	// ErrNotADirectory is returned when ReadDir, or a path component lookup,
	// is asked to descend into something that isn't a directory.
	ErrNotADirectory = errors.New("squash4: not a directory")

	// ErrTooManySymlinks guards symlink resolution against cycles.
	ErrTooManySymlinks = errors.New("squash4: too many levels of symbolic links")
)
