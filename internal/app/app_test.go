package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.toml")
	outputDir := filepath.Join(dir, "output")
	toml := fmt.Sprintf("[paths]\noutput_directory = %q\n", outputDir)
	require.NoError(t, os.WriteFile(configPath, []byte(toml), 0o644))

	a, err := New(configPath, filepath.Join(dir, "config-dynamic.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewWiresEveryComponent(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	assert.NotNil(t, a.Guard)
	assert.NotNil(t, a.Settings)
	assert.NotNil(t, a.Recorder)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Counter)
	assert.NotNil(t, a.Scheduler)
	assert.NotNil(t, a.Dynamic())
}

func TestStartSchedulerHonorsAutostartFlag(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	dyn := a.Dynamic()
	dyn.SchedulerAutostart = false
	require.NoError(t, a.StartScheduler())
	assert.False(t, a.Scheduler.IsRunning())
}

func TestExecuteCaptureDefaultRunsWithNoEnabledSets(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, a.ExecuteCaptureDefault(ctx))
}

func TestReloadPlanSucceedsWithNoCapturePlanFiles(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	assert.NoError(t, a.ReloadPlan())
}
