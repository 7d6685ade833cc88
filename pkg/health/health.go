// Package health exposes named events and regions as heptiolabs/healthcheck
// checks, so a process can report ready only while the objects it depends on
// exist.
package health

import (
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/namedipc/pkg/event"
	"github.com/srediag/namedipc/pkg/shm"
)

const (
	checkTimeout  = time.Second
	maxGoroutines = 10000
)

// EventCheck passes while an event with the given name can be attached to.
// The check never creates the event.
func EventCheck(name string) healthcheck.Check {
	return func() error {
		ev, err := event.Open(name)
		if err != nil {
			return err
		}
		return ev.Close()
	}
}

// RegionCheck passes while a region of at least size bytes exists under name.
func RegionCheck(name string, size int) healthcheck.Check {
	return func() error {
		r, err := shm.Open(name, size)
		if err != nil {
			return err
		}
		return r.Close()
	}
}

// Objects lists what a process needs to be ready.
type Objects struct {
	Events  []string
	Regions map[string]int // name -> minimum size
}

// NewHandler returns a handler serving /live and /ready. Liveness only guards
// against goroutine leaks; readiness also requires every object in o.
func NewHandler(o Objects) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	for _, name := range o.Events {
		h.AddReadinessCheck("event:"+name, healthcheck.Timeout(EventCheck(name), checkTimeout))
	}
	for name, size := range o.Regions {
		h.AddReadinessCheck(fmt.Sprintf("shm:%s", name), healthcheck.Timeout(RegionCheck(name, size), checkTimeout))
	}
	return h
}
