//go:build !linux && !windows

package shm

import (
	"errors"
	"time"
)

// Event is not available on this platform.
type Event struct{}

// Region is not available on this platform.
type Region struct{}

func OpenEvent(EventOptions) (*Event, bool, error) {
	return nil, false, errors.ErrUnsupported
}

func (*Event) Signal() error { return errors.ErrUnsupported }

func (*Event) Wait(time.Duration) (bool, error) { return false, errors.ErrUnsupported }

func (*Event) Close() error { return nil }

func UnlinkEvent(string) error { return errors.ErrUnsupported }

func OpenRegion(MapOptions) (*Region, bool, error) {
	return nil, false, errors.ErrUnsupported
}

func (*Region) Map(int) (*MappedRegion, error) { return nil, errors.ErrUnsupported }

func (*Region) Close() error { return nil }

func UnmapRegion(*MappedRegion) error { return nil }

func UnlinkRegion(string) error { return errors.ErrUnsupported }
