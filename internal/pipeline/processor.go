// Package pipeline drives records from a stream source through identity
// resolution, mapping, batching and upload, reporting one outcome per record.
package pipeline

import (
	"context"
	"time"

	"evfwd/internal/batch"
	"evfwd/internal/event"
	"evfwd/internal/fault"
	"evfwd/internal/identity"
	"evfwd/internal/log"
	"evfwd/internal/mapping"
	"evfwd/internal/metrics"
	"evfwd/internal/record"
	"evfwd/internal/report"
	"evfwd/internal/stream"
	"evfwd/internal/upload"
)

// NowUnix is split for testability.
var NowUnix = func() int64 { return time.Now().Unix() }

type ProcessorConfig struct {
	Dispatcher  *upload.Dispatcher
	Reporter    report.Reporter
	Environment batch.Environment
	Resolver    *identity.Resolver
	Mapper      *mapping.Mapper
	Metrics     *metrics.Registry
	Logger      *log.Logger
}

// Processor turns one stream message into one reported outcome. It holds no
// per-record state and is safe for concurrent use.
type Processor struct {
	dispatcher *upload.Dispatcher
	reporter   report.Reporter
	env        batch.Environment
	resolver   *identity.Resolver
	mapper     *mapping.Mapper
	metrics    *metrics.Registry
	logger     *log.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		dispatcher: cfg.Dispatcher,
		reporter:   cfg.Reporter,
		env:        cfg.Environment,
		resolver:   cfg.Resolver,
		mapper:     cfg.Mapper,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
	if p.reporter == nil {
		p.reporter = report.NewMulti()
	}
	if p.env == "" {
		p.env = batch.Development
	}
	if p.resolver == nil {
		p.resolver = identity.NewResolver()
	}
	if p.mapper == nil {
		p.mapper = mapping.NewMapper(nil)
	}
	if p.metrics == nil {
		p.metrics = metrics.NewRegistry()
	}
	if p.logger == nil {
		p.logger = log.GetLogger()
	}
	return p
}

// prepare runs every stage short of upload. When ok is false the outcome
// carries the fault; otherwise it is the base for the upload outcome.
func (p *Processor) prepare(msg stream.Message) (b batch.Batch, o report.Outcome, ok bool) {
	p.metrics.RecordsReceived.Inc()
	o = report.Outcome{RecordID: msg.ID(), Topic: msg.Topic, Key: msg.Key, Payload: msg.Value, At: NowUnix()}

	rec, err := record.Parse(msg.Value)
	if err != nil {
		return batch.Batch{}, p.faulted(o, err), false
	}
	o.EventType = rec.EventType()

	id := p.resolver.Resolve(rec)
	ev, err := p.mapper.Map(rec)
	if err != nil {
		return batch.Batch{}, p.faulted(o, err), false
	}
	p.metrics.EventsMapped.WithLabelValues(string(ev.Kind())).Inc()

	b, err = batch.Assemble(id, []event.Event{ev}, p.env)
	if err != nil {
		return batch.Batch{}, p.faulted(o, fault.New(fault.Assembly, err.Error())), false
	}
	return b, o, true
}

func (p *Processor) faulted(o report.Outcome, err error) report.Outcome {
	f, ok := fault.As(err)
	if !ok {
		f = fault.New(fault.Assembly, err.Error())
	}
	p.metrics.Faults.WithLabelValues(string(f.Kind)).Inc()
	o.Stage = report.StageOf(f.Kind)
	o.FaultKind = f.Kind
	o.Detail = f.Error()
	return o
}

// Process handles a single message end to end and returns its outcome.
func (p *Processor) Process(ctx context.Context, msg stream.Message) report.Outcome {
	b, o, ok := p.prepare(msg)
	if !ok {
		p.emit(ctx, o)
		return o
	}
	start := time.Now()
	res := p.dispatcher.Dispatch(ctx, b)
	p.metrics.UploadLatency.Observe(time.Since(start).Seconds())
	o = p.uploaded(o, res)
	p.emit(ctx, o)
	return o
}

// ProcessBulk prepares every message and uploads the surviving batches in one
// bulk call. Outcomes are returned in message order.
func (p *Processor) ProcessBulk(ctx context.Context, msgs []stream.Message) []report.Outcome {
	out := make([]report.Outcome, len(msgs))
	var batches []batch.Batch
	var idx []int
	for i, m := range msgs {
		b, o, ok := p.prepare(m)
		out[i] = o
		if !ok {
			p.emit(ctx, o)
			continue
		}
		batches = append(batches, b)
		idx = append(idx, i)
	}
	if len(batches) == 0 {
		return out
	}
	start := time.Now()
	results := p.dispatcher.DispatchBulk(ctx, batches)
	p.metrics.UploadLatency.Observe(time.Since(start).Seconds())
	for j, res := range results {
		i := idx[j]
		out[i] = p.uploaded(out[i], res)
		p.emit(ctx, out[i])
	}
	return out
}

func (p *Processor) uploaded(o report.Outcome, res upload.Result) report.Outcome {
	p.metrics.Uploads.WithLabelValues(string(res.Status)).Inc()
	o.Stage = report.StageDispatch
	o.Status = res.Status
	o.BatchReference = res.BatchReference
	o.HTTPStatus = res.HTTPStatus
	o.Detail = res.Detail
	return o
}

func (p *Processor) emit(ctx context.Context, o report.Outcome) {
	if err := p.reporter.Report(ctx, o); err != nil {
		p.metrics.SinkErrors.Inc()
		p.logger.Error("report outcome", log.String("record_id", o.RecordID), log.Error(err))
	}
}
