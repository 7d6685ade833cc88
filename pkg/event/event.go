// Package event provides named, process-shareable auto-reset events.
//
// An event is a binary signal: Signal sets it, and one successful Wait consumes
// it. Any number of processes can open the same name; whichever process comes
// first creates the event and the others attach to it, indistinguishably except
// for Created:
//
//	ev, err := event.Create("/jobs-ready", false)
//	if err != nil {
//		return err
//	}
//	defer ev.Close()
//
//	switch err := ev.Wait(5 * time.Second); {
//	case ipcerr.IsTimeout(err):
//		// nothing happened yet
//	case err != nil:
//		return err
//	}
//
// The initial state passed to Create only applies when the call creates the
// event. On Linux events are small files in /dev/shm that persist until
// Destroy or Unlink; on Windows the kernel drops an event with its last handle.
package event

import (
	"errors"
	"io/fs"
	"time"

	"github.com/srediag/namedipc/internal/logger"
	internalshm "github.com/srediag/namedipc/internal/shm"
	"github.com/srediag/namedipc/pkg/ipcerr"
	"github.com/srediag/namedipc/pkg/telemetry"
)

// Infinite makes Wait block until the event is signaled.
const Infinite time.Duration = -1

var log = logger.New("namedipc/event", nil)

// Event is a handle on a named event. Close it exactly once.
type Event struct {
	name    string
	created bool
	h       *internalshm.Event
}

// Create opens the named event, creating it with the given initial state if it
// does not exist yet. initial is ignored when attaching to an existing event.
func Create(name string, initial bool) (*Event, error) {
	return open("create", name, initial, true)
}

// Open attaches to an existing named event. It fails with KindCreationFailed,
// wrapping fs.ErrNotExist, when no such event exists.
func Open(name string) (*Event, error) {
	return open("open", name, false, false)
}

func open(op, name string, initial, create bool) (*Event, error) {
	t := telemetry.Start(telemetry.FacilityEvent, op, name)
	if name == "" {
		return nil, t.End(ipcerr.Invalid("event."+op, name, "empty name"))
	}
	h, created, err := internalshm.OpenEvent(internalshm.EventOptions{
		Name:    name,
		Initial: initial,
		Create:  create,
	})
	if err != nil {
		if create || !errors.Is(err, fs.ErrNotExist) {
			log.Errorf("event %s %q: %v", op, name, err)
		}
		return nil, t.End(ipcerr.New("event."+op, name, ipcerr.KindCreationFailed, err))
	}
	telemetry.Opened(telemetry.FacilityEvent, name)
	ev := &Event{name: name, created: created, h: h}
	return ev, t.End(nil)
}

// Name returns the name the event was opened with.
func (e *Event) Name() string {
	return e.name
}

// Created reports whether the call that returned e created the event, as
// opposed to attaching to one that already existed.
func (e *Event) Created() bool {
	return e.created
}

// Signal sets the event, releasing at most one waiter. Signals do not
// accumulate: signaling a set event leaves it set once.
func (e *Event) Signal() error {
	const op = "event.signal"
	if e == nil || e.h == nil {
		return ipcerr.Invalid(op, "", "nil or closed event")
	}
	t := telemetry.Start(telemetry.FacilityEvent, "signal", e.name)
	if err := e.h.Signal(); err != nil {
		log.Errorf("%s %q: %v", op, e.name, err)
		return t.End(ipcerr.New(op, e.name, ipcerr.KindSystem, err))
	}
	return t.End(nil)
}

// Wait blocks until the event is signaled, consuming the signal, or until
// timeout elapses. Use Infinite to wait without limit and 0 to poll. An elapsed
// timeout is reported as KindTimedOut; anything else that goes wrong is
// KindSystem. There is no way to cancel a wait other than signaling the event.
func (e *Event) Wait(timeout time.Duration) error {
	const op = "event.wait"
	if e == nil || e.h == nil {
		return ipcerr.Invalid(op, "", "nil or closed event")
	}
	if timeout < 0 && timeout != Infinite {
		return ipcerr.Invalid(op, e.name, "negative timeout")
	}
	t := telemetry.Start(telemetry.FacilityEvent, "wait", e.name)
	start := time.Now()
	var res error
	switch ok, err := e.h.Wait(timeout); {
	case err != nil:
		log.Errorf("%s %q: %v", op, e.name, err)
		res = ipcerr.New(op, e.name, ipcerr.KindSystem, err)
	case !ok:
		res = ipcerr.New(op, e.name, ipcerr.KindTimedOut, nil)
	}
	telemetry.ObserveWait(time.Since(start), res)
	return t.End(res)
}

// Close releases this process's handle. It never removes the name; other
// processes keep their handles. Closing a nil or closed Event does nothing.
func (e *Event) Close() error {
	if e == nil || e.h == nil {
		return nil
	}
	t := telemetry.Start(telemetry.FacilityEvent, "close", e.name)
	err := e.h.Close()
	e.h = nil
	telemetry.Closed(telemetry.FacilityEvent, e.name)
	if err != nil {
		log.Warnf("event.close %q: %v", e.name, err)
		return t.End(ipcerr.New("event.close", e.name, ipcerr.KindSystem, err))
	}
	return t.End(nil)
}

// Destroy closes the handle and then removes the name, so that the next Create
// makes a fresh event. Processes that still hold the event keep using it.
func (e *Event) Destroy() error {
	if e == nil {
		return nil
	}
	return errors.Join(e.Close(), Unlink(e.name))
}

// Unlink removes a name from the event namespace without needing a handle.
func Unlink(name string) error {
	const op = "event.unlink"
	t := telemetry.Start(telemetry.FacilityEvent, "unlink", name)
	if name == "" {
		return t.End(ipcerr.Invalid(op, name, "empty name"))
	}
	if err := internalshm.UnlinkEvent(name); err != nil {
		return t.End(ipcerr.New(op, name, ipcerr.KindSystem, err))
	}
	return t.End(nil)
}
