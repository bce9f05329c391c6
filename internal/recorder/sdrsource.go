package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// SdrSource abstracts over SDR device kinds (and the simulate test double)
// that the recorder drives. Each implementation carries its own gain range
// as an associated constant table, enforced by clamping (never rejecting).
type SdrSource interface {
	// Name identifies the device kind for logging.
	Name() string
	// GainRange returns the device's valid (min, max) gain in dB.
	GainRange() (min, max float64)
	// Arm opens/creates the underlying streaming graph. Returns an error
	// the recorder surfaces as SdrUnavailable.
	Arm() error
	// SetCenterFreq tunes to freqHz.
	SetCenterFreq(freqHz int64) error
	// SetSampleRate sets the capture bandwidth, run.span_hz per spec.
	SetSampleRate(sampleRateHz int64) error
	// SetGain applies rf/if gain, clamped to GainRange.
	SetGain(rfGain, ifGain float64) error
	// Start begins streaming fftSize-bin log-power frames at frameRate
	// frames/sec into onFrame, blocking until ctx is cancelled or Stop is
	// called.
	Start(ctx context.Context, fftSize, frameRate int, onFrame func([]float64)) error
	// Stop halts streaming (idempotent).
	Stop() error
	// Disconnect fully tears down the streaming graph.
	Disconnect() error
}

func clampGain(gain, min, max float64, logger *slog.Logger, device string) float64 {
	if gain < min {
		logger.Warn("gain below device range, clamping", "device", device, "requested", gain, "clamped", min)
		return min
	}
	if gain > max {
		logger.Warn("gain above device range, clamping", "device", device, "requested", gain, "clamped", max)
		return max
	}
	return gain
}

// rtlsdrGainRange mirrors the RTL2832U tuner's documented gain steps.
const (
	rtlsdrGainMin = 0.0
	rtlsdrGainMax = 49.6
)

// RTLSDR is an rtl-sdr-shaped stand-in over the external SDR driver
// boundary; the actual device I/O is out of scope (§1).
type RTLSDR struct {
	logger *slog.Logger
	rfGain float64
}

func NewRTLSDR(logger *slog.Logger) *RTLSDR { return &RTLSDR{logger: logger} }

func (d *RTLSDR) Name() string                     { return "rtlsdr" }
func (d *RTLSDR) GainRange() (float64, float64)     { return rtlsdrGainMin, rtlsdrGainMax }
func (d *RTLSDR) Arm() error                        { return nil }
func (d *RTLSDR) SetCenterFreq(freqHz int64) error  { return nil }
func (d *RTLSDR) SetSampleRate(sampleRateHz int64) error { return nil }
func (d *RTLSDR) SetGain(rfGain, ifGain float64) error {
	d.rfGain = clampGain(rfGain, rtlsdrGainMin, rtlsdrGainMax, d.logger, d.Name())
	return nil
}
func (d *RTLSDR) Start(ctx context.Context, fftSize, frameRate int, onFrame func([]float64)) error {
	return fmt.Errorf("rtlsdr: real device I/O is outside this module's scope (see §1 Out of scope)")
}
func (d *RTLSDR) Stop() error       { return nil }
func (d *RTLSDR) Disconnect() error { return nil }

// sdrplayGainRange mirrors the SDRplay RSP family's documented IF/RF
// attenuation-derived gain steps.
const (
	sdrplayGainMin = -20.0
	sdrplayGainMax = 59.0
)

// SDRplay is an sdrplay-shaped stand-in over the external SDR driver
// boundary; real device I/O is out of scope (§1).
type SDRplay struct {
	logger *slog.Logger
	ifGain float64
}

func NewSDRplay(logger *slog.Logger) *SDRplay { return &SDRplay{logger: logger} }

func (d *SDRplay) Name() string                     { return "sdrplay" }
func (d *SDRplay) GainRange() (float64, float64)     { return sdrplayGainMin, sdrplayGainMax }
func (d *SDRplay) Arm() error                        { return nil }
func (d *SDRplay) SetCenterFreq(freqHz int64) error  { return nil }
func (d *SDRplay) SetSampleRate(sampleRateHz int64) error { return nil }
func (d *SDRplay) SetGain(rfGain, ifGain float64) error {
	d.ifGain = clampGain(ifGain, sdrplayGainMin, sdrplayGainMax, d.logger, d.Name())
	return nil
}
func (d *SDRplay) Start(ctx context.Context, fftSize, frameRate int, onFrame func([]float64)) error {
	return fmt.Errorf("sdrplay: real device I/O is outside this module's scope (see §1 Out of scope)")
}
func (d *SDRplay) Stop() error       { return nil }
func (d *SDRplay) Disconnect() error { return nil }

// simulateGainRange is wide open since Simulate never touches real hardware.
const (
	simulateGainMin = 0.0
	simulateGainMax = 100.0
)

// Simulate generates synthetic log-power frames for hardware-free
// operation and tests, grounded on large-farva-ephemeris-engine's
// simulateCapture: a deterministic baseline plus seeded Gaussian noise, streamed
// at the configured frame rate until the context is cancelled.
type Simulate struct {
	logger     *slog.Logger
	centerHz   int64
	sampleRate int64
	rfGain     float64
	ifGain     float64
	rng        *rand.Rand

	stopCh chan struct{}
}

func NewSimulate(logger *slog.Logger) *Simulate {
	return &Simulate{logger: logger, rng: rand.New(rand.NewSource(1)), stopCh: make(chan struct{}, 1)}
}

func (d *Simulate) Name() string                 { return "simulate" }
func (d *Simulate) GainRange() (float64, float64) { return simulateGainMin, simulateGainMax }
func (d *Simulate) Arm() error                    { return nil }

func (d *Simulate) SetCenterFreq(freqHz int64) error {
	d.centerHz = freqHz
	return nil
}

func (d *Simulate) SetSampleRate(sampleRateHz int64) error {
	d.sampleRate = sampleRateHz
	return nil
}

func (d *Simulate) SetGain(rfGain, ifGain float64) error {
	d.rfGain = clampGain(rfGain, simulateGainMin, simulateGainMax, d.logger, d.Name())
	d.ifGain = clampGain(ifGain, simulateGainMin, simulateGainMax, d.logger, d.Name())
	return nil
}

// Start streams synthetic frames: a flat noise floor around -90 dB with a
// few simulated narrowband carriers, until ctx is cancelled or Stop fires.
func (d *Simulate) Start(ctx context.Context, fftSize, frameRate int, onFrame func([]float64)) error {
	if frameRate <= 0 {
		frameRate = 25
	}
	period := time.Second / time.Duration(frameRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	carrierBins := []int{fftSize / 4, fftSize / 2, (3 * fftSize) / 4}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.stopCh:
			return nil
		case <-ticker.C:
			frame := make([]float64, fftSize)
			for i := range frame {
				frame[i] = -90.0 + d.rng.NormFloat64()*2.0
			}
			for _, bin := range carrierBins {
				if bin >= 0 && bin < fftSize {
					frame[bin] = -40.0 + d.rng.NormFloat64()*3.0
				}
			}
			onFrame(frame)
		}
	}
}

func (d *Simulate) Stop() error {
	select {
	case d.stopCh <- struct{}{}:
	default:
	}
	return nil
}

func (d *Simulate) Disconnect() error { return nil }
