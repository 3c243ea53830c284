package ingest

import (
	"errors"
	"fmt"
)

// Reason classifies why a reconcile call was rejected.
type Reason string

const (
	ReasonAllocationOverflow Reason = "AllocationOverflow"
	ReasonNoAnchorAvailable  Reason = "NoAnchorAvailable"
	ReasonPersistenceFailure Reason = "PersistenceFailure"
	ReasonRenderFailure      Reason = "RenderFailure"
)

// Stage names the pipeline step a reconcile call reached.
type Stage string

const (
	StageReceived         Stage = "received"
	StageSegmented        Stage = "segmented"
	StageAttributed       Stage = "attributed"
	StageNormalized       Stage = "normalized"
	StageDiffed           Stage = "diffed"
	StageAllocated        Stage = "allocated"
	StagePlanned          Stage = "planned"
	StagePersisted        Stage = "persisted"
	StageCacheInvalidated Stage = "cache_invalidated"
)

// ReconcileError is returned for every rejected call. Nothing has been
// written when it is returned.
type ReconcileError struct {
	Reason Reason
	Stage  Stage
	Err    error
}

func (e *ReconcileError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("reconcile %s after %s: %v", e.Reason, e.Stage, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

func allocationError(stage Stage, err error) *ReconcileError {
	reason := ReasonAllocationOverflow
	var lerr *LookupError
	switch {
	case errors.As(err, &lerr):
		reason = ReasonPersistenceFailure
	case errors.Is(err, ErrNoAnchor):
		reason = ReasonNoAnchorAvailable
	}
	return &ReconcileError{Reason: reason, Stage: stage, Err: err}
}
