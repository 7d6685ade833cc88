//go:build windows

package shm

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procOpenFileMappingW = modkernel32.NewProc("OpenFileMappingW")
)

func openFileMapping(desiredAccess uint32, inheritHandle bool, name *uint16) (handle windows.Handle, err error) {
	inherit := 0
	if inheritHandle {
		inherit = 1
	}
	r1, _, e1 := procOpenFileMappingW.Call(
		uintptr(desiredAccess),
		uintptr(inherit),
		uintptr(unsafe.Pointer(name)),
	)
	if r1 == 0 {
		err = error(e1)
	} else {
		handle = windows.Handle(r1)
	}
	return
}

// Region is the backing object of a named shared memory region: a pagefile-backed
// section handle.
type Region struct {
	name string
	h    windows.Handle
}

// OpenRegion creates or attaches to the named section. The kernel ignores the size
// of an attach; an undersized section makes Map fail instead.
func OpenRegion(opts MapOptions) (*Region, bool, error) {
	name := normalizeName(opts.Name)
	if name == "" {
		// an empty name would create an anonymous object
		return nil, false, fmt.Errorf("region name %q: %w", opts.Name, windows.ERROR_INVALID_NAME)
	}
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, false, fmt.Errorf("region name %q: %w", opts.Name, err)
	}
	if !opts.Create {
		h, err := openFileMapping(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, false, p)
		if err != nil {
			return nil, false, fmt.Errorf("OpenFileMapping %s: %w", name, err)
		}
		log.Debugf("region %s attached", name)
		return &Region{name: name, h: h}, false, nil
	}

	size := uint64(opts.Size)
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
		uint32(size>>32), uint32(size), p)
	if h == 0 {
		return nil, false, fmt.Errorf("CreateFileMapping %s: %w", name, err)
	}
	created := !errors.Is(err, windows.ERROR_ALREADY_EXISTS)
	log.Debugf("region %s opened, size=%d created=%t", name, opts.Size, created)
	return &Region{name: name, h: h}, created, nil
}

// Map maps the first size bytes of the section read/write.
func (r *Region) Map(size int) (*MappedRegion, error) {
	addr, err := windows.MapViewOfFile(r.h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, fmt.Errorf("MapViewOfFile %s: %w", r.name, err)
	}
	return &MappedRegion{
		Addr: unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
		addr: addr,
	}, nil
}

// Close releases the section handle. Views stay valid until unmapped.
func (r *Region) Close() error {
	if r.h == 0 {
		return nil
	}
	err := windows.CloseHandle(r.h)
	r.h = 0
	if err != nil {
		return fmt.Errorf("CloseHandle %s: %w", r.name, err)
	}
	return nil
}

// UnmapRegion removes a view from the address space.
func UnmapRegion(m *MappedRegion) error {
	if m == nil || m.addr == 0 {
		return nil
	}
	if err := windows.UnmapViewOfFile(m.addr); err != nil {
		return fmt.Errorf("UnmapViewOfFile: %w", err)
	}
	m.Addr = nil
	m.addr = 0
	return nil
}

// UnlinkRegion is a no-op: section names go away with their last handle.
func UnlinkRegion(name string) error {
	log.Tracef("region %s: unlink is implicit on windows", normalizeName(name))
	return nil
}
