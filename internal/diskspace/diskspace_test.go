package diskspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNearestExistingPathReturnsItselfWhenPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.Equal(t, dir, NearestExistingPath(dir))
}

func TestNearestExistingPathWalksUpToExistingAncestor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	missing := filepath.Join(dir, "not", "created", "yet")
	assert.Equal(t, dir, NearestExistingPath(missing))
}

func TestFreeMBReportsPositiveHeadroom(t *testing.T) {
	t.Parallel()

	freeMB, known := FreeMB(t.TempDir())
	assert.True(t, known)
	assert.Greater(t, freeMB, int64(0))
}
