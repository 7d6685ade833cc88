//go:build linux

package shm

import (
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// canCreateOnDevShm reports whether /dev/shm has size free bytes. Paths outside
// /dev/shm always pass; so does a failed statfs, leaving the decision to ftruncate.
func canCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, defaultDir+"/") {
		return true
	}
	stat, err := disk.Usage(filepath.Dir(path))
	if err != nil {
		log.Warnf("statfs %s: %v", filepath.Dir(path), err)
		return true
	}
	return stat.Free >= size
}
