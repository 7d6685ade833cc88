package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/namedipc/pkg/event"
	"github.com/srediag/namedipc/pkg/health"
	"github.com/srediag/namedipc/pkg/ipcerr"
	"github.com/srediag/namedipc/pkg/shm"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type CLITestSuite struct {
	suite.Suite
	name string
}

func (s *CLITestSuite) SetupSuite() {
	if runtime.GOOS != "linux" {
		// the commands release their handles on exit, which on Windows drops the object
		s.T().Skip("cross-invocation tests need persistent names")
	}
}

func (s *CLITestSuite) SetupTest() {
	s.name = fmt.Sprintf("namedipc-cli-%d-%d", os.Getpid(), time.Now().UnixNano())
}

func (s *CLITestSuite) TearDownTest() {
	_ = event.Unlink(s.name)
	_ = shm.Unlink(s.name)
}

func (s *CLITestSuite) TestEventLifecycle() {
	out, err := execute("event", "create", s.name)
	s.Require().NoError(err)
	s.Equal("created\n", out)

	out, err = execute("event", "create", s.name)
	s.Require().NoError(err)
	s.Equal("attached\n", out)

	_, err = execute("event", "wait", s.name, "--timeout", "0")
	s.True(ipcerr.IsTimeout(err), "unsignaled event")

	_, err = execute("event", "signal", s.name)
	s.Require().NoError(err)
	_, err = execute("event", "wait", s.name, "--timeout", "1s")
	s.Require().NoError(err)

	_, err = execute("event", "rm", s.name)
	s.Require().NoError(err)
	_, err = execute("event", "signal", s.name)
	s.Equal(ipcerr.KindCreationFailed, ipcerr.KindOf(err))
}

func (s *CLITestSuite) TestEventWaitFlagsExclusive() {
	_, err := execute("event", "wait", s.name, "--timeout", "1s", "--forever")
	s.Error(err)
}

func (s *CLITestSuite) TestTimeoutFromConfigFile() {
	cfg := filepath.Join(s.T().TempDir(), "namedipc.yaml")
	s.Require().NoError(os.WriteFile(cfg, []byte("timeout: 20ms\nlog_level: error\n"), 0o600))

	start := time.Now()
	_, err := execute("--config", cfg, "event", "wait", s.name)
	s.True(ipcerr.IsTimeout(err))
	s.Less(time.Since(start), 5*time.Second)
}

func (s *CLITestSuite) TestRegionWriteRead() {
	_, err := execute("region", "write", s.name, "--size", "64", "--offset", "8", "hello")
	s.Require().NoError(err)

	out, err := execute("region", "read", s.name, "--size", "64", "--offset", "8", "--length", "5")
	s.Require().NoError(err)
	s.Equal("hello", out)

	out, err = execute("region", "create", s.name, "--size", "64")
	s.Require().NoError(err)
	s.Equal("attached\n", out)

	_, err = execute("region", "write", s.name, "--size", "64", "--offset", "62", "abc")
	s.Error(err, "write past the end")

	_, err = execute("region", "rm", s.name)
	s.Require().NoError(err)
	_, err = execute("region", "read", s.name, "--size", "64")
	s.Equal(ipcerr.KindCreationFailed, ipcerr.KindOf(err))
}

func (s *CLITestSuite) TestAwaitSeesLateCreator() {
	go func() {
		time.Sleep(50 * time.Millisecond)
		if ev, err := event.Create(s.name, false); err == nil {
			_ = ev.Close()
		}
	}()
	out, err := execute("await", s.name, "--kind", "event", "--max-wait", "5s")
	s.Require().NoError(err)
	s.Equal("present\n", out)
}

func (s *CLITestSuite) TestAwaitGivesUp() {
	start := time.Now()
	err := awaitObject(kindRegion, s.name, 16, 100*time.Millisecond)
	s.Equal(ipcerr.KindCreationFailed, ipcerr.KindOf(err))
	s.Less(time.Since(start), 5*time.Second)
}

func (s *CLITestSuite) TestBench() {
	out, err := execute("bench", "--name", s.name, "--iterations", "50", "--workers", "2")
	s.Require().NoError(err)
	s.Contains(out, "round trips: 100")
	s.Contains(out, "p99")
}

func (s *CLITestSuite) TestHoldMux() {
	h, err := openHeld([]string{s.name}, "", 0)
	s.Require().NoError(err)
	defer h.release(true)

	mux := newHoldMux(h.objects("", 0))
	for _, path := range []string{"/live", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		s.Equal(http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.True(strings.Contains(rec.Body.String(), "namedipc_operations_total"))
}

func TestCLITestSuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"event", "create"}, {"event", "signal"}, {"event", "wait"}, {"event", "rm"},
		{"region", "create"}, {"region", "write"}, {"region", "read"}, {"region", "rm"},
		{"await"}, {"hold"}, {"bench"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestBadLogLevel(t *testing.T) {
	_, err := execute("--log-level", "loud", "event", "rm", "x")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestAwaitUnknownKindIsPermanent(t *testing.T) {
	start := time.Now()
	err := awaitObject("pipe", "x", 1, time.Minute)
	assert.ErrorContains(t, err, "unknown kind")
	assert.Less(t, time.Since(start), time.Second)
}

func TestHoldNeedsObjects(t *testing.T) {
	_, err := execute("hold")
	assert.ErrorContains(t, err, "nothing to hold")
}

func TestHolderObjects(t *testing.T) {
	h := &holder{}
	assert.Equal(t, health.Objects{Regions: map[string]int{"r": 8}}, h.objects("r", 8))
}

func TestWindow(t *testing.T) {
	assert.NoError(t, window(10, 0, 10))
	assert.NoError(t, window(10, 10, 0))
	assert.Error(t, window(10, 8, 3))
	assert.Error(t, window(10, -1, 1))
	assert.Error(t, window(10, 11, 0))
}
