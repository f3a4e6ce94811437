// Package fshelp walks slash-separated paths over a directory tree one
// component at a time, resolving symlinks (relative or absolute) as it
// goes. It knows nothing about SquashFS, or any other on-disk format:
// callers supply an Iterate function to list a directory's entries and a
// ReadSymlink function to resolve a link's target, and fshelp drives
// them the way grub_fshelp_find_file drives a filesystem driver's own
// iterate_dir and read_symlink callbacks.
package fshelp

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotExist is returned when a path component has no matching entry.
var ErrNotExist = errors.New("fshelp: no such file or directory")

// ErrNotADirectory is returned when a non-final path component resolves
// to something other than a directory.
var ErrNotADirectory = errors.New("fshelp: not a directory")

// ErrTooManySymlinks is returned once symlink resolution exceeds
// maxSymlinkDepth, guarding against cyclic or absurdly long link chains.
var ErrTooManySymlinks = errors.New("fshelp: too many levels of symbolic links")

// maxSymlinkDepth bounds the number of symlinks FindFile will follow
// while resolving a single path, the same bound grub_fshelp_find_file
// enforces.
const maxSymlinkDepth = 8

// FileType classifies a directory entry for the caller's Iterate
// callback; it intentionally only distinguishes what path resolution
// cares about.
type FileType int

const (
	TypeReg FileType = iota
	TypeDir
	TypeSymlink
)

// Node is an opaque handle to a directory or file, round-tripped back to
// the caller's callbacks without fshelp ever inspecting it.
type Node any

// Hook is called once per entry of the directory being iterated. A true
// return stops the iteration early (the entry was the one being sought).
type Hook func(name string, ft FileType, node Node) (stop bool, err error)

// Iterate lists dir's entries, calling hook for each until hook returns
// true, an error occurs, or entries are exhausted.
type Iterate func(dir Node, hook Hook) error

// ReadSymlink resolves a symlink node to its target path, which may be
// absolute or relative to the symlink's parent directory.
type ReadSymlink func(node Node) (string, error)

// FindFile walks path starting at root, calling iterate to search each
// directory level and readSymlink whenever a path component is a
// symlink. An absolute symlink target restarts the remainder of the walk
// at root; a relative one continues from the symlink's own directory —
// the same rule grub_fshelp_find_file applies.
func FindFile(path string, root Node, iterate Iterate, readSymlink ReadSymlink) (Node, FileType, error) {
	cur, curType := root, TypeDir
	var parents []Node
	remaining := splitPath(path)
	depth := 0

	for len(remaining) > 0 {
		name := remaining[0]
		remaining = remaining[1:]

		if curType != TypeDir {
			return nil, 0, ErrNotADirectory
		}

		if name == ".." {
			if len(parents) > 0 {
				cur = parents[len(parents)-1]
				parents = parents[:len(parents)-1]
			}
			continue
		}

		found, foundType, ok, err := lookup(cur, name, iterate)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotExist, name)
		}

		if foundType == TypeSymlink {
			depth++
			if depth > maxSymlinkDepth {
				return nil, 0, ErrTooManySymlinks
			}
			target, err := readSymlink(found)
			if err != nil {
				return nil, 0, err
			}
			if strings.HasPrefix(target, "/") {
				cur, curType = root, TypeDir
				parents = nil
			}
			remaining = append(splitPath(target), remaining...)
			continue
		}

		parents = append(parents, cur)
		cur, curType = found, foundType
	}

	return cur, curType, nil
}

func lookup(dir Node, name string, iterate Iterate) (Node, FileType, bool, error) {
	var found Node
	var foundType FileType
	var ok bool
	err := iterate(dir, func(entryName string, ft FileType, node Node) (bool, error) {
		if entryName == name {
			found, foundType, ok = node, ft, true
			return true, nil
		}
		return false, nil
	})
	return found, foundType, ok, err
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}
