package mint

import (
	"context"
	"fmt"
	"sync"

	"github.com/viraltok/tokmint/pkg/types"
)

// Stage is a state of the mint pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageVerifyingWallet
	StageGeneratingAddress
	StageUploadingAssets
	StageRequestingTransaction
	StageSigningWithMint
	StageSigningWithWallet
	StageBroadcasting
	StageConfirming
	StagePersisting
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageIdle:                  "idle",
	StageVerifyingWallet:       "verifying-wallet",
	StageGeneratingAddress:     "generating-address",
	StageUploadingAssets:       "uploading-assets",
	StageRequestingTransaction: "requesting-transaction",
	StageSigningWithMint:       "signing-with-mint",
	StageSigningWithWallet:     "signing-with-wallet",
	StageBroadcasting:          "broadcasting",
	StageConfirming:            "confirming",
	StagePersisting:            "persisting",
	StageDone:                  "done",
	StageFailed:                "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// stageProgress is the coarse completion fraction reported on entering a stage.
var stageProgress = map[Stage]float64{
	StageVerifyingWallet:       0.02,
	StageGeneratingAddress:     0.05,
	StageUploadingAssets:       0.30,
	StageRequestingTransaction: 0.45,
	StageSigningWithMint:       0.55,
	StageSigningWithWallet:     0.60,
	StageBroadcasting:          0.75,
	StageConfirming:            0.85,
	StagePersisting:            0.95,
	StageDone:                  1,
}

// Status is one transition of the pipeline. FailedAt is set when Stage is StageFailed.
type Status struct {
	Stage    Stage
	FailedAt Stage
	Message  string
	Progress float64
	Err      error
}

// StatusFunc receives status transitions in order. Calls never overlap.
type StatusFunc func(Status)

// StageError is a fatal pipeline error tagged with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// tracker emits status transitions for one run. Once the caller's context is
// done, transitions are still tracked but no longer delivered.
type tracker struct {
	ctx     context.Context
	fn      StatusFunc
	mu      sync.Mutex
	current Stage
}

func newTracker(ctx context.Context, fn StatusFunc) *tracker {
	return &tracker{ctx: ctx, fn: fn}
}

func (t *tracker) enter(stage Stage, msg string) {
	t.mu.Lock()
	t.current = stage
	t.mu.Unlock()
	t.emit(Status{Stage: stage, Message: msg, Progress: stageProgress[stage]})
}

func (t *tracker) progress(msg string, fraction float64) {
	t.mu.Lock()
	stage := t.current
	t.mu.Unlock()
	t.emit(Status{Stage: stage, Message: msg, Progress: fraction})
}

func (t *tracker) stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// fail reports the failure of the current stage and returns it as a StageError.
func (t *tracker) fail(err error) error {
	stage := t.stage()
	msg := err.Error()
	if types.IsCancellation(err) {
		msg = "Transaction cancelled by user"
	}
	t.emit(Status{Stage: StageFailed, FailedAt: stage, Message: msg, Err: err})
	return &StageError{Stage: stage, Err: err}
}

func (t *tracker) emit(s Status) {
	if t.fn == nil || t.ctx.Err() != nil {
		return
	}
	t.fn(s)
}
