// Package shm contains the platform-specific primitives behind the public event
// and shm packages: named auto-reset events and named shared-memory regions.
//
// Linux keeps both kinds of object as files in a tmpfs directory (/dev/shm unless
// NAMEDIPC_SHM_DIR says otherwise). Windows uses kernel event and section objects.
// Errors returned here are plain wrapped errors; the public packages classify them.
package shm

import (
	"errors"
	"strings"

	"github.com/srediag/namedipc/internal/logger"
)

// EnvShmDir overrides the directory that holds named objects on Linux.
const EnvShmDir = "NAMEDIPC_SHM_DIR"

var (
	// ErrVanished is returned when a name keeps appearing and disappearing while we try to attach.
	ErrVanished = errors.New("object vanished during create-or-attach")
	// ErrIncompatible is returned when the name is held by an object of another kind or layout.
	ErrIncompatible = errors.New("name is held by an incompatible object")
	// ErrTooSmall is returned when a backing object is smaller than the caller expects.
	ErrTooSmall = errors.New("backing object is smaller than requested size")
)

var log = logger.New("namedipc/shm", nil)

// EventOptions describes how to obtain a named event.
type EventOptions struct {
	Name string
	// Initial is the signal state used only when the event is created by this call.
	Initial bool
	// Create allows creating the event; false means attach-only.
	Create bool
}

// MapOptions describes how to obtain a named shared memory region.
type MapOptions struct {
	Name string
	// Size is the minimum size in bytes the backing object must have.
	Size int
	// Create allows creating the region; false means attach-only.
	Create bool
}

// MappedRegion is a process-local view of a Region.
type MappedRegion struct {
	Addr []byte
	addr uintptr // base address on platforms where the view is not a Go mmap slice
}

// Len returns the mapped length in bytes.
func (m *MappedRegion) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Addr)
}

// maxCreateAttempts bounds the create-or-attach loop when a peer keeps
// creating and unlinking the same name underneath us.
const maxCreateAttempts = 16

// normalizeName strips a single leading slash so POSIX-style names
// ("/ready") work on every platform.
func normalizeName(name string) string {
	return strings.TrimPrefix(name, "/")
}
