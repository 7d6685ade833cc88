//go:build windows

package shm

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/windows"
)

const waitTimeout = 0x00000102

// Event is a named auto-reset kernel event.
type Event struct {
	name string
	h    windows.Handle
}

// OpenEvent creates or attaches to the named event. created reports whether this
// call created the object, and therefore whether opts.Initial was applied.
func OpenEvent(opts EventOptions) (*Event, bool, error) {
	name := normalizeName(opts.Name)
	if name == "" {
		// an empty name would create an anonymous object
		return nil, false, fmt.Errorf("event name %q: %w", opts.Name, windows.ERROR_INVALID_NAME)
	}
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, false, fmt.Errorf("event name %q: %w", opts.Name, err)
	}
	if !opts.Create {
		h, err := windows.OpenEvent(windows.EVENT_MODIFY_STATE|windows.SYNCHRONIZE, false, p)
		if err != nil {
			return nil, false, fmt.Errorf("OpenEvent %s: %w", name, err)
		}
		log.Debugf("event %s attached", name)
		return &Event{name: name, h: h}, false, nil
	}

	var initial uint32
	if opts.Initial {
		initial = 1
	}
	h, err := windows.CreateEvent(nil, 0, initial, p)
	if h == 0 {
		return nil, false, fmt.Errorf("CreateEvent %s: %w", name, err)
	}
	created := !errors.Is(err, windows.ERROR_ALREADY_EXISTS)
	log.Debugf("event %s opened, created=%t", name, created)
	return &Event{name: name, h: h}, created, nil
}

// Signal sets the event; the kernel releases exactly one waiter and resets it.
func (e *Event) Signal() error {
	if err := windows.SetEvent(e.h); err != nil {
		return fmt.Errorf("SetEvent %s: %w", e.name, err)
	}
	return nil
}

// Wait consumes the signal, sleeping up to timeout for it; a negative timeout
// sleeps until signaled. It reports false when the timeout elapsed.
func (e *Event) Wait(timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ms := uint32(windows.INFINITE)
		if timeout >= 0 {
			ms = millis(time.Until(deadline))
		}
		ev, err := windows.WaitForSingleObject(e.h, ms)
		switch ev {
		case windows.WAIT_OBJECT_0:
			return true, nil
		case waitTimeout:
			// long timeouts are waited out in chunks below INFINITE
			if timeout >= 0 && time.Now().Before(deadline) {
				continue
			}
			return false, nil
		default:
			return false, fmt.Errorf("WaitForSingleObject %s: %w", e.name, err)
		}
	}
}

// millis rounds d up to whole milliseconds, clamped below INFINITE.
func millis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms >= windows.INFINITE {
		return windows.INFINITE - 1
	}
	return uint32(ms)
}

// Close releases the handle. The kernel destroys the event with its last handle.
func (e *Event) Close() error {
	if e.h == 0 {
		return nil
	}
	err := windows.CloseHandle(e.h)
	e.h = 0
	if err != nil {
		return fmt.Errorf("CloseHandle %s: %w", e.name, err)
	}
	return nil
}

// UnlinkEvent is a no-op: kernel object names go away with their last handle.
func UnlinkEvent(name string) error {
	log.Tracef("event %s: unlink is implicit on windows", normalizeName(name))
	return nil
}
