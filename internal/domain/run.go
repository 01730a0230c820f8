package domain

import (
	"fmt"
	"time"
)

// FailureKind classifies why a unit of work did not complete.
type FailureKind string

const (
	FailureTransport   FailureKind = "transport"
	FailureParse       FailureKind = "parse"
	FailureInference   FailureKind = "inference"
	FailurePersistence FailureKind = "persistence"
)

// Pipeline stages a Failure can be attributed to.
const (
	StageFetch         = "fetch"
	StageDecode        = "decode"
	StageNormalize     = "normalize"
	StageAdoptionCheck = "adoption-check"
	StageUpsert        = "upsert"
	StageHistory       = "history"
)

// Failure is one reportable problem of a run, tied to an animal or an endpoint.
type Failure struct {
	AnimalID *int64
	Endpoint string
	Stage    string
	Kind     FailureKind
	Message  string
}

func (f Failure) String() string {
	subject := f.Endpoint
	if f.AnimalID != nil {
		subject = fmt.Sprintf("animal %d", *f.AnimalID)
	}
	return fmt.Sprintf("%s [%s/%s]: %s", subject, f.Stage, f.Kind, f.Message)
}

// RunSummary reports the outcome of one reconciliation pass.
type RunSummary struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Fetched          int
	Upserted         int
	EventsLogged     int
	EventsSuppressed int
	Skipped          int
	Adopted          []int64
	Returned         []int64
	Arrived          []int64
	Errors           []Failure
	Cancelled        bool
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// FailedIDs enumerates animal ids with at least one failure.
func (s RunSummary) FailedIDs() []int64 {
	seen := map[int64]struct{}{}
	var ids []int64
	for _, f := range s.Errors {
		if f.AnimalID == nil {
			continue
		}
		if _, ok := seen[*f.AnimalID]; ok {
			continue
		}
		seen[*f.AnimalID] = struct{}{}
		ids = append(ids, *f.AnimalID)
	}
	return ids
}
