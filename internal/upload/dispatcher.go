// Package upload submits batches to the ingestion API and classifies the
// outcome. Retries are left to the caller and the transport.
package upload

import (
	"context"
	"net/http"
	"strings"

	"evfwd/internal/batch"
)

// Status is the classified outcome of one batch upload.
type Status string

const (
	Accepted       Status = "accepted"
	Rejected       Status = "rejected"
	TransportError Status = "transport_error"
)

// Response is what the ingestion collaborator returned.
type Response struct {
	StatusCode int
	Body       []byte
}

// Ingestion is the upstream collaborator.
type Ingestion interface {
	Submit(ctx context.Context, b batch.Batch) (Response, error)
	SubmitBulk(ctx context.Context, bs []batch.Batch) (Response, error)
}

// Result is reported once per batch.
type Result struct {
	BatchReference string `json:"batch_reference"`
	Status         Status `json:"status"`
	Detail         string `json:"detail,omitempty"`
	HTTPStatus     int    `json:"http_status,omitempty"`
}

const maxDetail = 512

// Classify maps a collaborator response onto a Status: 202 is accepted, any
// 4xx is a rejection, everything else (including errors) is a transport error.
func Classify(resp Response, err error) (Status, string) {
	if err != nil {
		return TransportError, err.Error()
	}
	detail := truncate(strings.TrimSpace(string(resp.Body)))
	switch {
	case resp.StatusCode == http.StatusAccepted:
		return Accepted, detail
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Rejected, detail
	default:
		if detail == "" {
			detail = "unexpected status " + http.StatusText(resp.StatusCode)
		}
		return TransportError, detail
	}
}

func truncate(s string) string {
	if len(s) <= maxDetail {
		return s
	}
	return s[:maxDetail] + "..."
}

type Dispatcher struct {
	api Ingestion
}

func NewDispatcher(api Ingestion) *Dispatcher {
	return &Dispatcher{api: api}
}

// Dispatch blocks until the collaborator answers or fails.
func (d *Dispatcher) Dispatch(ctx context.Context, b batch.Batch) Result {
	resp, err := d.api.Submit(ctx, b)
	return result(b.Reference, resp, err)
}

// DispatchBulk submits all batches in one call. The call has a single
// outcome, so every batch receives the same status, in input order.
func (d *Dispatcher) DispatchBulk(ctx context.Context, bs []batch.Batch) []Result {
	if len(bs) == 0 {
		return nil
	}
	resp, err := d.api.SubmitBulk(ctx, bs)
	out := make([]Result, len(bs))
	for i, b := range bs {
		out[i] = result(b.Reference, resp, err)
	}
	return out
}

func result(ref string, resp Response, err error) Result {
	status, detail := Classify(resp, err)
	r := Result{BatchReference: ref, Status: status, Detail: detail}
	if err == nil {
		r.HTTPStatus = resp.StatusCode
	}
	return r
}
