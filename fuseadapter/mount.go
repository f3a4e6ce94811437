package fuseadapter

import (
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	squash4 "github.com/sqfsboot/squash4"
)

// Mount FUSE-mounts m read-only at mountpoint and returns the running
// server. Callers are responsible for calling Wait (or Unmount) on the
// result.
func Mount(mountpoint string, m *squash4.Mount, opts *fuse.MountOptions) (*fuse.Server, error) {
	root, err := Root(m)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &fuse.MountOptions{}
	}
	opts.Name = "squash4"
	opts.FsName = "squash4"
	return gofs.Mount(mountpoint, root, &gofs.Options{MountOptions: *opts})
}
