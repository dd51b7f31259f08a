package fuse

import (
	"fmt"
	"log"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/mar-file-system/gomarfs/internal/marfs/engine"
)

// MountManager owns one active FUSE mount of a Filesystem, mirroring the
// teacher's internal/fuse.MountManager shape (validate, mount, background
// Wait, Unmount).
type MountManager struct {
	filesystem *Filesystem
	server     *fuse.Server
	mountPoint string
	mounted    bool
}

// MountOptions mirrors the handful of go-fuse mount.Options fields this
// adapter exposes; the teacher's fuller MountOptions struct (splice,
// writeback cache, kernel tuning) has no MarFS-specific meaning and is left
// to the caller to set directly on gofs.Options if needed.
type MountOptions struct {
	ReadOnly   bool
	AllowOther bool
	Debug      bool
	FSName     string
}

// NewMountManager constructs a MountManager that will serve e through a
// go-fuse filesystem once Mount is called.
func NewMountManager(e *engine.Engine, mountPoint string) *MountManager {
	return &MountManager{
		filesystem: NewFilesystem(e),
		mountPoint: mountPoint,
	}
}

// Mount mounts the filesystem at m.mountPoint and starts serving in the
// background, the same lifecycle shape as the teacher's MountManager.Mount.
func (m *MountManager) Mount(opts *MountOptions) error {
	if m.mounted {
		return fmt.Errorf("marfs: already mounted at %s", m.mountPoint)
	}
	if opts == nil {
		opts = &MountOptions{}
	}

	fsOpts := &gofs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			FsName:     opts.FSName,
			Name:       "gomarfs",
		},
	}
	if opts.ReadOnly {
		fsOpts.Options = append(fsOpts.Options, "ro")
	}

	server, err := gofs.Mount(m.mountPoint, m.filesystem.Root(), fsOpts)
	if err != nil {
		return fmt.Errorf("marfs: mount failed: %w", err)
	}

	m.server = server
	m.mounted = true

	go func() {
		m.server.Wait()
		m.mounted = false
	}()

	log.Printf("gomarfs mounted at %s", m.mountPoint)
	return nil
}

// Unmount tears down the mount.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return fmt.Errorf("marfs: not mounted")
	}
	if err := m.server.Unmount(); err != nil {
		return fmt.Errorf("marfs: unmount failed: %w", err)
	}
	m.mounted = false
	return nil
}

// Wait blocks until the mount is torn down, e.g. by fusermount -u.
func (m *MountManager) Wait() {
	if m.server != nil {
		m.server.Wait()
	}
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *MountManager) IsMounted() bool { return m.mounted }
