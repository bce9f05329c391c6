// Package diskspace probes free disk space on the volume backing the
// station's output directory, so the pipeline can log headroom before
// deleting raw files, without ever blocking on the result.
package diskspace

import (
	"os"
	"path/filepath"
	"syscall"
)

// NearestExistingPath walks up from path to the nearest existing ancestor,
// so free-space can still be queried when the configured output directory
// has not been created yet.
func NearestExistingPath(path string) string {
	p, err := filepath.Abs(path)
	if err != nil {
		p = path
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

// FreeMB returns the free space, in megabytes, on the filesystem backing
// path's nearest existing ancestor. Returns (0, false) on failure; callers
// must treat that as "unknown", never as zero free space.
func FreeMB(path string) (int64, bool) {
	base := NearestExistingPath(path)

	var stat syscall.Statfs_t
	if err := syscall.Statfs(base, &stat); err != nil {
		return 0, false
	}

	freeBytes := stat.Bavail * uint64(stat.Bsize)
	return int64(freeBytes / (1024 * 1024)), true
}
