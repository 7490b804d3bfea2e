// Package batch assembles identity and events into the unit of upload.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"evfwd/internal/event"
	"evfwd/internal/identity"
)

// Environment tags a batch for the upstream workspace.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case Development, Production:
		return Environment(s), nil
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

var ErrEmptyBatch = errors.New("batch has no events")

// NewReference returns a fresh batch reference. Split for testability.
var NewReference = func() string { return uuid.NewString() }

// Batch is owned by the caller until its upload result is produced.
type Batch struct {
	Reference   string
	Environment Environment
	Identity    identity.Context
	Events      []event.Event
}

// Assemble builds a batch. Fields were validated during mapping; the only
// rule here is that a batch carries at least one event.
func Assemble(id identity.Context, events []event.Event, env Environment) (Batch, error) {
	if len(events) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	evs := make([]event.Event, len(events))
	copy(evs, events)
	return Batch{
		Reference:   NewReference(),
		Environment: env,
		Identity:    id,
		Events:      evs,
	}, nil
}

type userIdentities struct {
	CustomerID string `json:"customer_id,omitempty"`
}

type deviceInfo struct {
	IOSAdvertisingID     string `json:"ios_advertising_id,omitempty"`
	AndroidAdvertisingID string `json:"android_advertising_id,omitempty"`
}

// MarshalJSON renders the ingestion API batch document.
func (b Batch) MarshalJSON() ([]byte, error) {
	var ui *userIdentities
	if v, ok := b.Identity.Get(identity.CustomerID); ok {
		ui = &userIdentities{CustomerID: v}
	}
	var di *deviceInfo
	ios, hasIOS := b.Identity.Get(identity.IOSAdvertisingID)
	android, hasAndroid := b.Identity.Get(identity.AndroidAdvertisingID)
	if hasIOS || hasAndroid {
		di = &deviceInfo{IOSAdvertisingID: ios, AndroidAdvertisingID: android}
	}
	return json.Marshal(struct {
		SourceRequestID string          `json:"source_request_id"`
		Environment     Environment     `json:"environment"`
		UserIdentities  *userIdentities `json:"user_identities,omitempty"`
		DeviceInfo      *deviceInfo     `json:"device_info,omitempty"`
		Events          []event.Event   `json:"events"`
	}{b.Reference, b.Environment, ui, di, b.Events})
}
