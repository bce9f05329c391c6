package domain

import "sync/atomic"

// AtomicBool is a thin wrapper over atomic.Bool giving RecordingStatus a
// cancellation flag that can be polled by callers that hold no context,
// alongside the context.Context cancellation used inside the pipeline.
type AtomicBool struct {
	v atomic.Bool
}

func (b *AtomicBool) Set(val bool) { b.v.Store(val) }
func (b *AtomicBool) Get() bool    { return b.v.Load() }
