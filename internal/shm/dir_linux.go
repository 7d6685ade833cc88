//go:build linux

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const (
	defaultDir = "/dev/shm"
	objectPerm = 0666
)

var (
	dir    = defaultDir
	tmpSeq atomic.Uint64
)

func init() {
	if d := os.Getenv(EnvShmDir); d != "" {
		dir = d
	}
}

// SetDir changes the directory holding named objects and returns the previous one.
// It must not race with open calls.
func SetDir(d string) string {
	prev := dir
	dir = d
	return prev
}

// Dir returns the directory holding named objects.
func Dir() string {
	return dir
}

// objectPath maps a name to its file, following shm_open's rules:
// one leading slash is dropped and no other slash is allowed.
func objectPath(prefix, name string) (string, error) {
	n := normalizeName(name)
	if n == "" || n == "." || n == ".." || strings.ContainsRune(n, '/') {
		return "", fmt.Errorf("name %q: %w", name, unix.EINVAL)
	}
	return filepath.Join(dir, prefix+n), nil
}

func tempPath(path string) string {
	return filepath.Join(filepath.Dir(path),
		fmt.Sprintf(".%s.%d.%d.tmp", filepath.Base(path), os.Getpid(), tmpSeq.Add(1)))
}

func closeFd(fd int) {
	if err := unix.Close(fd); err != nil {
		log.Warnf("close fd %d: %v", fd, err)
	}
}
