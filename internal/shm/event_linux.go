//go:build linux

package shm

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event file layout: magic | state. The state word is the futex.
const (
	eventPrefix = "event."
	eventSize   = 8
	eventMagic  = uint32(0x31545645) // "EVT1" little-endian
	magicOffset = 0
	stateOffset = 4
)

// Event is a named auto-reset event backed by an 8-byte shared file.
type Event struct {
	path string
	mem  []byte
}

// OpenEvent creates or attaches to the named event. created reports whether this
// call created the object, and therefore whether opts.Initial was applied.
func OpenEvent(opts EventOptions) (ev *Event, created bool, err error) {
	path, err := objectPath(eventPrefix, opts.Name)
	if err != nil {
		return nil, false, err
	}
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		ev, err = attachEvent(path)
		if err == nil {
			log.Debugf("event %s attached", path)
			return ev, false, nil
		}
		if !opts.Create || !errors.Is(err, unix.ENOENT) {
			return nil, false, err
		}
		ev, err = createEvent(path, opts.Initial)
		if err == nil {
			log.Debugf("event %s created, initial=%t", path, opts.Initial)
			return ev, true, nil
		}
		if !errors.Is(err, unix.EEXIST) {
			return nil, false, err
		}
		// another process linked its event first; attach to it
	}
	return nil, false, fmt.Errorf("event %s: %w", path, ErrVanished)
}

func attachEvent(path string) (*Event, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer closeFd(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("fstat %s: %w", path, err)
	}
	if st.Size != eventSize {
		return nil, fmt.Errorf("%s has %d bytes: %w", path, st.Size, ErrIncompatible)
	}
	mem, err := unix.Mmap(fd, 0, eventSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	if AtomicLoadUint32(unsafe.Pointer(&mem[magicOffset])) != eventMagic {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("%s: bad magic: %w", path, ErrIncompatible)
	}
	return &Event{path: path, mem: mem}, nil
}

// createEvent initialises a private file and links it into place, so an attacher
// either sees no file or a fully initialised one.
func createEvent(path string, initial bool) (*Event, error) {
	tmp := tempPath(path)
	fd, err := unix.Open(tmp, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC|unix.O_NOFOLLOW, objectPerm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tmp, err)
	}
	defer closeFd(fd)
	defer func() {
		if err := unix.Unlink(tmp); err != nil {
			log.Warnf("unlink %s: %v", tmp, err)
		}
	}()

	if err := unix.Ftruncate(fd, eventSize); err != nil {
		return nil, fmt.Errorf("ftruncate %s: %w", tmp, err)
	}
	mem, err := unix.Mmap(fd, 0, eventSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", tmp, err)
	}
	var state uint32
	if initial {
		state = 1
	}
	AtomicStoreUint32(unsafe.Pointer(&mem[stateOffset]), state)
	AtomicStoreUint32(unsafe.Pointer(&mem[magicOffset]), eventMagic)

	if err := unix.Link(tmp, path); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("link %s: %w", path, err)
	}
	return &Event{path: path, mem: mem}, nil
}

func (e *Event) state() unsafe.Pointer {
	return unsafe.Pointer(&e.mem[stateOffset])
}

// Signal sets the event and wakes one waiter. Signaling a set event is a no-op.
func (e *Event) Signal() error {
	st := e.state()
	AtomicStoreUint32(st, 1)
	if err := futexWakeOne(st); err != nil {
		return fmt.Errorf("futex wake %s: %w", e.path, err)
	}
	return nil
}

// Wait consumes the signal, sleeping up to timeout for it; a negative timeout
// sleeps until signaled. It reports false when the timeout elapsed.
func (e *Event) Wait(timeout time.Duration) (bool, error) {
	st := e.state()
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if AtomicCompareAndSwapUint32(st, 1, 0) {
			return true, nil
		}
		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
		}
		err := futexWaitOn(st, 0, remaining)
		switch {
		case err == nil,
			errors.Is(err, unix.EAGAIN),
			errors.Is(err, unix.EINTR),
			errors.Is(err, unix.ETIMEDOUT):
		default:
			return false, fmt.Errorf("futex wait %s: %w", e.path, err)
		}
	}
}

// Close unmaps the event. The file stays until UnlinkEvent.
func (e *Event) Close() error {
	if e.mem == nil {
		return nil
	}
	err := unix.Munmap(e.mem)
	e.mem = nil
	if err != nil {
		return fmt.Errorf("munmap %s: %w", e.path, err)
	}
	return nil
}

// UnlinkEvent removes the event's name. Open handles keep working.
func UnlinkEvent(name string) error {
	path, err := objectPath(eventPrefix, name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	log.Debugf("event %s unlinked", path)
	return nil
}
