// Package report surfaces per-record and per-batch outcomes to one or more
// sinks. A sink failure never changes the outcome being reported.
package report

import (
	"context"
	"errors"
	"sync"

	"evfwd/internal/fault"
	"evfwd/internal/upload"
)

// Stage names where a record's processing ended.
type Stage string

const (
	StageParse    Stage = "parse"
	StageClassify Stage = "classification"
	StageMap      Stage = "mapping"
	StageAssemble Stage = "assembly"
	StageDispatch Stage = "dispatch"
)

// StageOf maps a fault kind onto the stage that raised it.
func StageOf(k fault.Kind) Stage {
	switch k {
	case fault.Parse:
		return StageParse
	case fault.Classification:
		return StageClassify
	case fault.Mapping:
		return StageMap
	default:
		return StageAssemble
	}
}

// Outcome is either a fault (FaultKind set) or an upload result (Status set).
type Outcome struct {
	RecordID       string        `json:"record_id"`
	Stage          Stage         `json:"stage"`
	FaultKind      fault.Kind    `json:"fault_kind,omitempty"`
	Status         upload.Status `json:"status,omitempty"`
	BatchReference string        `json:"batch_reference,omitempty"`
	HTTPStatus     int           `json:"http_status,omitempty"`
	Detail         string        `json:"detail,omitempty"`
	EventType      string        `json:"event_type,omitempty"`
	Topic          string        `json:"topic,omitempty"`
	Key            []byte        `json:"-"`
	Payload        []byte        `json:"-"`
	At             int64         `json:"at"`
}

func (o Outcome) Accepted() bool {
	return o.FaultKind == "" && o.Status == upload.Accepted
}

// Label is the fault kind or upload status, whichever applies.
func (o Outcome) Label() string {
	if o.FaultKind != "" {
		return string(o.FaultKind)
	}
	return string(o.Status)
}

type Reporter interface {
	Report(ctx context.Context, o Outcome) error
}

// Multi fans out to every reporter and joins their errors.
type Multi struct {
	reporters []Reporter
}

func NewMulti(rs ...Reporter) *Multi {
	return &Multi{reporters: rs}
}

func (m *Multi) Report(ctx context.Context, o Outcome) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collector keeps outcomes in memory.
type Collector struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (c *Collector) Report(_ context.Context, o Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
	return nil
}

func (c *Collector) Outcomes() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}
