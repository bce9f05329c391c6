// Package app wires the station's components into one root value: a
// single *App instance constructed at startup and passed down explicitly,
// replacing the source's module-level "get_X()" singletons (Pipeline,
// Recorder, Scheduler, ConfigManager) with an explicit, mutex-guarded
// struct a caller owns and can shut down deterministically.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qrmstation/qrmlogger/internal/captureplan"
	"github.com/qrmstation/qrmlogger/internal/conf"
	"github.com/qrmstation/qrmlogger/internal/counter"
	"github.com/qrmstation/qrmlogger/internal/logging"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/pipeline"
	"github.com/qrmstation/qrmlogger/internal/recorder"
	"github.com/qrmstation/qrmlogger/internal/scheduler"
	"github.com/qrmstation/qrmlogger/internal/sink"
)

// App holds every long-lived component this process needs, built once at
// startup. Fields that can change at runtime (Dynamic, Plan) are guarded
// by mu; the rest are wired once and never replaced.
type App struct {
	Guard    *pathguard.Guard
	Settings *conf.Settings
	Recorder *recorder.Recorder
	Pipeline *pipeline.Pipeline
	Counter  *counter.Counter
	Scheduler *scheduler.Scheduler
	Logger   *slog.Logger

	mu      sync.RWMutex
	dynamic *conf.DynamicConfig
	plan    captureplan.Plan
}

// New loads configuration, wires every component and returns the ready
// App. It does not start the scheduler; call StartScheduler explicitly
// once the caller is ready to accept background captures.
func New(configPath, dynamicConfigPath string) (*App, error) {
	settings, err := conf.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := logging.Init(settings); err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	logger := logging.ForComponent("app")

	guard, err := pathguard.New(settings.Paths.OutputDirectory)
	if err != nil {
		return nil, fmt.Errorf("opening output directory: %w", err)
	}

	dynamic, err := conf.LoadDynamicConfig(dynamicConfigPath, settings)
	if err != nil {
		return nil, fmt.Errorf("loading dynamic config: %w", err)
	}

	plan, err := captureplan.Load(guard, settings, logging.ForComponent("captureplan"))
	if err != nil {
		return nil, fmt.Errorf("loading capture plan: %w", err)
	}

	source := selectSDRSource(settings, logging.ForComponent("sdr"))
	sk := sink.New(guard, logging.ForComponent("sink"))
	rec := recorder.New(source, sk, settings, logging.ForComponent("recorder"))
	cnt := counter.New(guard, conf.CounterFileName)
	pipe := pipeline.New(guard, settings, dynamic, rec, cnt, logging.ForComponent("pipeline"))

	a := &App{
		Guard:    guard,
		Settings: settings,
		Recorder: rec,
		Pipeline: pipe,
		Counter:  cnt,
		Logger:   logger,
		dynamic:  dynamic,
		plan:     plan,
	}
	a.Scheduler = scheduler.New(a.runScheduledCapture, logging.ForComponent("scheduler"))
	return a, nil
}

// selectSDRSource picks the concrete SdrSource implementation named by
// settings.SDR.DeviceName, defaulting to the rtlsdr driver.
func selectSDRSource(settings *conf.Settings, logger *slog.Logger) recorder.SdrSource {
	switch settings.SDR.DeviceName {
	case "sdrplay":
		return recorder.NewSDRplay(logger)
	default:
		return recorder.NewRTLSDR(logger)
	}
}

// Dynamic returns the current dynamic config overlay.
func (a *App) Dynamic() *conf.DynamicConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dynamic
}

// Plan returns the current capture plan (capture sets, ROI config, bands).
func (a *App) Plan() captureplan.Plan {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.plan
}

// ReloadPlan re-reads the capture-set, ROI and band-definition files,
// replacing the in-memory plan atomically. Useful after an operator edits
// one of those files without restarting the process.
func (a *App) ReloadPlan() error {
	plan, err := captureplan.Load(a.Guard, a.Settings, logging.ForComponent("captureplan"))
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.plan = plan
	a.mu.Unlock()
	return nil
}

func (a *App) runScheduledCapture(ctx context.Context) error {
	return a.ExecuteCaptureDefault(ctx)
}

// ExecuteCaptureDefault runs one capture batch over the current plan's
// capture sets with default (non-calibration) parameters. This is the one
// entry point both the scheduler and a --run-once CLI invocation call.
func (a *App) ExecuteCaptureDefault(ctx context.Context) error {
	a.mu.RLock()
	sets := a.plan.CaptureSets
	roiCfg := a.plan.ROIConfig
	a.mu.RUnlock()
	return a.Pipeline.ExecuteCaptureDefault(ctx, sets, roiCfg)
}

// StartScheduler starts the periodic-capture cron job if
// Dynamic().SchedulerAutostart is set, using Dynamic().SchedulerCron.
func (a *App) StartScheduler() error {
	a.mu.RLock()
	autostart := a.dynamic.SchedulerAutostart
	cron := a.dynamic.SchedulerCron
	a.mu.RUnlock()

	if !autostart {
		a.Logger.Info("scheduler autostart disabled, not starting")
		return nil
	}
	return a.Scheduler.Start(cron)
}

// Close stops the scheduler and releases the output directory handle.
func (a *App) Close() error {
	if err := a.Scheduler.Stop(); err != nil {
		a.Logger.Error("stopping scheduler", "error", err)
	}
	return a.Guard.Close()
}
