package event

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/namedipc/pkg/ipcerr"
	"github.com/srediag/namedipc/pkg/telemetry"
)

var nameSeq atomic.Uint64

func uniqueName(prefix string) string {
	return fmt.Sprintf("namedipc-test-%s-%d-%d-%d", prefix, os.Getpid(), time.Now().UnixNano(), nameSeq.Add(1))
}

type EventTestSuite struct {
	suite.Suite
	name string
}

func (s *EventTestSuite) SetupSuite() {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		s.T().Skip("named events are not supported on " + runtime.GOOS)
	}
}

func (s *EventTestSuite) SetupTest() {
	s.name = uniqueName("ev")
}

func (s *EventTestSuite) TearDownTest() {
	_ = Unlink(s.name)
}

func (s *EventTestSuite) TestCreateReportsCreatedThenAttached() {
	first, err := Create(s.name, false)
	s.Require().NoError(err)
	defer first.Close()
	s.True(first.Created())
	s.Equal(s.name, first.Name())

	second, err := Create(s.name, true)
	s.Require().NoError(err)
	defer second.Close()
	s.False(second.Created())

	// initial=true was ignored on attach
	s.True(ipcerr.IsTimeout(second.Wait(0)))
}

func (s *EventTestSuite) TestDestroyThenCreateIsFirstCreation() {
	ev, err := Create(s.name, true)
	s.Require().NoError(err)
	s.Require().NoError(ev.Destroy())

	again, err := Create(s.name, true)
	s.Require().NoError(err)
	defer again.Destroy()
	s.True(again.Created())
	s.NoError(again.Wait(0), "initial state honored again")
}

func (s *EventTestSuite) TestSignalVisibleThroughOtherHandle() {
	a, err := Create(s.name, false)
	s.Require().NoError(err)
	defer a.Close()
	b, err := Create(s.name, false)
	s.Require().NoError(err)
	defer b.Close()

	s.Require().NoError(a.Signal())
	s.NoError(b.Wait(time.Second))
	s.True(ipcerr.IsTimeout(a.Wait(0)), "signal consumed by the first wait")
}

func (s *EventTestSuite) TestSignalThenInfiniteWaitReturnsAtOnce() {
	ev, err := Create(s.name, false)
	s.Require().NoError(err)
	defer ev.Close()

	s.Require().NoError(ev.Signal())
	start := time.Now()
	s.NoError(ev.Wait(Infinite))
	s.Less(time.Since(start), time.Second)
}

func (s *EventTestSuite) TestShortWaitTimesOut() {
	ev, err := Create(s.name, false)
	s.Require().NoError(err)
	defer ev.Close()

	const timeout = 100 * time.Millisecond
	start := time.Now()
	err = ev.Wait(timeout)
	elapsed := time.Since(start)

	s.True(errors.Is(err, ipcerr.ErrTimedOut), "got %v", err)
	s.False(errors.Is(err, ipcerr.ErrSystem), "timeout must be distinguishable from a hard error")
	s.GreaterOrEqual(elapsed, timeout-10*time.Millisecond)
	s.Less(elapsed, timeout+2*time.Second)
}

func (s *EventTestSuite) TestWaitWakesBlockedWaiter() {
	ev, err := Create(s.name, false)
	s.Require().NoError(err)
	defer ev.Close()
	peer, err := Open(s.name)
	s.Require().NoError(err)
	defer peer.Close()

	done := make(chan error, 1)
	go func() { done <- peer.Wait(Infinite) }()
	time.Sleep(20 * time.Millisecond)
	s.Require().NoError(ev.Signal())

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("waiter was not released")
		_ = ev.Signal()
	}
}

func (s *EventTestSuite) TestOpenMissing() {
	_, err := Open(s.name)
	s.Require().Error(err)
	s.Equal(ipcerr.KindCreationFailed, ipcerr.KindOf(err))
	if runtime.GOOS == "linux" {
		s.ErrorIs(err, fs.ErrNotExist)
	}
}

func (s *EventTestSuite) TestInvalidArguments() {
	_, err := Create("", false)
	s.ErrorIs(err, ipcerr.ErrInvalidArgument)
	_, err = Open("")
	s.ErrorIs(err, ipcerr.ErrInvalidArgument)
	s.ErrorIs(Unlink(""), ipcerr.ErrInvalidArgument)

	var nilEvent *Event
	s.ErrorIs(nilEvent.Signal(), ipcerr.ErrInvalidArgument)
	s.ErrorIs(nilEvent.Wait(0), ipcerr.ErrInvalidArgument)
	s.NoError(nilEvent.Close())
	s.NoError(nilEvent.Destroy())

	ev, err := Create(s.name, false)
	s.Require().NoError(err)
	s.ErrorIs(ev.Wait(-5*time.Millisecond), ipcerr.ErrInvalidArgument)

	s.Require().NoError(ev.Close())
	s.NoError(ev.Close(), "second close is a no-op")
	s.ErrorIs(ev.Signal(), ipcerr.ErrInvalidArgument)
	s.ErrorIs(ev.Wait(0), ipcerr.ErrInvalidArgument)
}

func (s *EventTestSuite) TestLiveHandleAccounting() {
	key := telemetry.FacilityEvent + "/" + s.name
	ev, err := Create(s.name, false)
	s.Require().NoError(err)
	s.Equal(1, telemetry.Live()[key])
	s.Require().NoError(ev.Close())
	_, held := telemetry.Live()[key]
	s.False(held)
}

func (s *EventTestSuite) TestSlashOnlyNameIsRejected() {
	ev, err := Create("/", true)
	s.Nil(ev)
	s.Equal(ipcerr.KindCreationFailed, ipcerr.KindOf(err))
}

func TestEventTestSuite(t *testing.T) {
	suite.Run(t, new(EventTestSuite))
}
