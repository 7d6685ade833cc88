//go:build linux

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Regions live at <dir>/shm.<name>, apart from events at <dir>/event.<name>.
const regionPrefix = "shm."

// Region is the backing object of a named shared memory region: an open
// descriptor on a file in the shm directory.
type Region struct {
	path string
	fd   int
}

// OpenRegion creates or attaches to the named region and makes sure it holds at
// least opts.Size bytes. Attach-only opens never grow the region; they fail with
// ErrTooSmall instead. On failure nothing stays open, and a name created by this
// call is unlinked again.
func OpenRegion(opts MapOptions) (r *Region, created bool, err error) {
	path, err := objectPath(regionPrefix, opts.Name)
	if err != nil {
		return nil, false, err
	}
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		fd := -1
		created = false
		if opts.Create {
			fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC|unix.O_NOFOLLOW, objectPerm)
			switch {
			case err == nil:
				created = true
			case !errors.Is(err, unix.EEXIST):
				return nil, false, fmt.Errorf("open %s: %w", path, err)
			}
		}
		if !created {
			fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
			if err != nil {
				if opts.Create && errors.Is(err, unix.ENOENT) {
					// unlinked between our two opens
					continue
				}
				return nil, false, fmt.Errorf("open %s: %w", path, err)
			}
		}

		r = &Region{path: path, fd: fd}
		if err := r.ensureSize(int64(opts.Size), opts.Create); err != nil {
			closeFd(fd)
			if created {
				if uerr := unix.Unlink(path); uerr != nil {
					log.Warnf("unlink %s after failed create: %v", path, uerr)
				}
			}
			return nil, false, err
		}
		log.Debugf("region %s opened, size=%d created=%t", path, opts.Size, created)
		return r, created, nil
	}
	return nil, false, fmt.Errorf("region %s: %w", path, ErrVanished)
}

// Size returns the current size of the backing object.
func (r *Region) Size() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(r.fd, &st); err != nil {
		return 0, fmt.Errorf("fstat %s: %w", r.path, err)
	}
	return st.Size, nil
}

func (r *Region) ensureSize(size int64, grow bool) error {
	if grow {
		// creators asking for different sizes must not shrink each other
		if err := unix.Flock(r.fd, unix.LOCK_EX); err != nil {
			return fmt.Errorf("flock %s: %w", r.path, err)
		}
		defer func() {
			if err := unix.Flock(r.fd, unix.LOCK_UN); err != nil {
				log.Warnf("unlock %s: %v", r.path, err)
			}
		}()
	}
	cur, err := r.Size()
	if err != nil {
		return err
	}
	if cur >= size {
		return nil
	}
	if !grow {
		return fmt.Errorf("%s has %d bytes, want %d: %w", r.path, cur, size, ErrTooSmall)
	}
	if !canCreateOnDevShm(uint64(size-cur), r.path) {
		return fmt.Errorf("grow %s by %d bytes: %w", r.path, size-cur, unix.ENOSPC)
	}
	if err := unix.Ftruncate(r.fd, size); err != nil {
		return fmt.Errorf("ftruncate %s: %w", r.path, err)
	}
	return nil
}

// Map maps the first size bytes of the region read/write and shared.
// Mapping past the end of the file would fault on first touch, so the current
// size is checked first.
func (r *Region) Map(size int) (*MappedRegion, error) {
	if err := r.ensureSize(int64(size), false); err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(r.fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", r.path, err)
	}
	return &MappedRegion{Addr: mem}, nil
}

// Close releases the descriptor. Mappings stay valid until unmapped.
func (r *Region) Close() error {
	if r.fd < 0 {
		return nil
	}
	err := unix.Close(r.fd)
	r.fd = -1
	if err != nil {
		return fmt.Errorf("close %s: %w", r.path, err)
	}
	return nil
}

// UnmapRegion removes a mapping from the address space.
func UnmapRegion(m *MappedRegion) error {
	if m == nil || m.Addr == nil {
		return nil
	}
	if err := unix.Munmap(m.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	m.Addr = nil
	return nil
}

// UnlinkRegion removes the region's name. Open descriptors and mappings keep working.
func UnlinkRegion(name string) error {
	path, err := objectPath(regionPrefix, name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	log.Debugf("region %s unlinked", path)
	return nil
}
