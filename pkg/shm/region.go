package shm

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/srediag/namedipc/internal/logger"
	internalshm "github.com/srediag/namedipc/internal/shm"
	"github.com/srediag/namedipc/pkg/ipcerr"
	"github.com/srediag/namedipc/pkg/telemetry"
)

var log = logger.New("namedipc/shm", nil)

// mapRegion is replaced in tests to make the platform mapping fail.
var mapRegion = func(h *internalshm.Region, size int) (*internalshm.MappedRegion, error) {
	return h.Map(size)
}

// Region is a handle on a named shared memory object with at most one mapping.
// Close it exactly once.
type Region struct {
	name    string
	size    int
	created bool
	h       *internalshm.Region
	m       *internalshm.MappedRegion
}

// Create opens the named region, creating it if needed, and grows it to at least
// size bytes. The size is required even when attaching: the caller must know how
// large the region is meant to be.
func Create(name string, size int) (*Region, error) {
	return open("create", name, size, true)
}

// Open attaches to an existing region. It fails with KindCreationFailed when the
// name does not exist or, where the platform can tell, when the region is
// smaller than size.
func Open(name string, size int) (*Region, error) {
	return open("open", name, size, false)
}

func open(op, name string, size int, create bool) (*Region, error) {
	t := telemetry.Start(telemetry.FacilityShm, op, name)
	if name == "" {
		return nil, t.End(ipcerr.Invalid("shm."+op, name, "empty name"))
	}
	if size <= 0 {
		return nil, t.End(ipcerr.Invalid("shm."+op, name, "size must be positive"))
	}
	h, created, err := internalshm.OpenRegion(internalshm.MapOptions{
		Name:   name,
		Size:   size,
		Create: create,
	})
	if err != nil {
		if create || !errors.Is(err, fs.ErrNotExist) {
			log.Errorf("shm %s %q: %v", op, name, err)
		}
		return nil, t.End(ipcerr.New("shm."+op, name, ipcerr.KindCreationFailed, err))
	}
	telemetry.Opened(telemetry.FacilityShm, name)
	r := &Region{name: name, size: size, created: created, h: h}
	return r, t.End(nil)
}

// CreateMapped creates or attaches to a region and maps size bytes of it. On
// failure nothing stays open, and a name created by this call is unlinked.
func CreateMapped(name string, size int) (*Region, []byte, error) {
	r, err := Create(name, size)
	if err != nil {
		return nil, nil, err
	}
	b, err := r.Map(size)
	if err != nil {
		if r.Created() {
			if uerr := Unlink(name); uerr != nil {
				log.Warnf("shm unlink %q after failed map: %v", name, uerr)
			}
		}
		return nil, nil, err
	}
	return r, b, nil
}

// Name returns the name the region was opened with.
func (r *Region) Name() string {
	return r.name
}

// Size returns the size requested when the region was opened.
func (r *Region) Size() int {
	return r.size
}

// Created reports whether the call that returned r created the region.
func (r *Region) Created() bool {
	return r.created
}

// Map maps the first size bytes of the region for reading and writing and
// returns them. A region has at most one mapping.
//
// Asking for more than Size bytes is an invalid argument and leaves the region
// untouched. If the operating system refuses the mapping, the backing handle is
// released as well: the error is KindMappingFailed, Close becomes a no-op and
// Destroy only removes the name.
func (r *Region) Map(size int) ([]byte, error) {
	const op = "shm.map"
	if r == nil || r.h == nil {
		return nil, ipcerr.Invalid(op, "", "nil or closed region")
	}
	switch {
	case r.m != nil:
		return nil, ipcerr.Invalid(op, r.name, "region is already mapped")
	case size <= 0:
		return nil, ipcerr.Invalid(op, r.name, "size must be positive")
	case size > r.size:
		return nil, ipcerr.Invalid(op, r.name, fmt.Sprintf("size %d exceeds region size %d", size, r.size))
	}
	t := telemetry.Start(telemetry.FacilityShm, "map", r.name)
	m, err := mapRegion(r.h, size)
	if err != nil {
		log.Errorf("%s %q: %v", op, r.name, err)
		if cerr := r.release(); cerr != nil {
			log.Warnf("%s %q: release after failed map: %v", op, r.name, cerr)
		}
		return nil, t.End(ipcerr.New(op, r.name, ipcerr.KindMappingFailed, err))
	}
	r.m = m
	log.Debugf("%s %q: %d bytes", op, r.name, m.Len())
	return m.Addr, t.End(nil)
}

// Bytes returns the current mapping, or nil.
func (r *Region) Bytes() []byte {
	if r == nil || r.m == nil {
		return nil
	}
	return r.m.Addr
}

func (r *Region) release() error {
	err := r.h.Close()
	r.h = nil
	telemetry.Closed(telemetry.FacilityShm, r.name)
	return err
}

// Close unmaps the region, if mapped, and then releases the backing handle.
// It never removes the name. Both steps run even if the first fails. Closing a
// nil or closed Region does nothing.
func (r *Region) Close() error {
	if r == nil || r.h == nil {
		return nil
	}
	t := telemetry.Start(telemetry.FacilityShm, "close", r.name)
	var errs []error
	if r.m != nil {
		if err := internalshm.UnmapRegion(r.m); err != nil {
			errs = append(errs, err)
		}
		r.m = nil
	}
	if err := r.release(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		log.Warnf("shm.close %q: %v", r.name, err)
		return t.End(ipcerr.New("shm.close", r.name, ipcerr.KindSystem, err))
	}
	return t.End(nil)
}

// Destroy unmaps, releases the handle and then removes the name, in that order.
// Processes that still hold the region keep using it.
func (r *Region) Destroy() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.Close(), Unlink(r.name))
}

// Unlink removes a name from the shared memory namespace without needing a handle.
func Unlink(name string) error {
	const op = "shm.unlink"
	t := telemetry.Start(telemetry.FacilityShm, "unlink", name)
	if name == "" {
		return t.End(ipcerr.Invalid(op, name, "empty name"))
	}
	if err := internalshm.UnlinkRegion(name); err != nil {
		return t.End(ipcerr.New(op, name, ipcerr.KindSystem, err))
	}
	return t.End(nil)
}
