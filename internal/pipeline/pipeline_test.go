package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evfwd/internal/batch"
	"evfwd/internal/deadletter"
	"evfwd/internal/event"
	"evfwd/internal/fault"
	"evfwd/internal/identity"
	"evfwd/internal/metrics"
	"evfwd/internal/report"
	"evfwd/internal/stream"
	"evfwd/internal/upload"
)

type fakeIngestion struct {
	mu        sync.Mutex
	status    int
	err       error
	single    []batch.Batch
	bulkCalls [][]batch.Batch
}

func (f *fakeIngestion) Submit(ctx context.Context, b batch.Batch) (upload.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, b)
	return upload.Response{StatusCode: f.status}, f.err
}

func (f *fakeIngestion) SubmitBulk(ctx context.Context, bs []batch.Batch) (upload.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls = append(f.bulkCalls, bs)
	return upload.Response{StatusCode: f.status}, f.err
}

func newProcessor(fi *fakeIngestion, r report.Reporter) (*Processor, *metrics.Registry) {
	reg := metrics.NewRegistry()
	return NewProcessor(ProcessorConfig{
		Dispatcher: upload.NewDispatcher(fi),
		Reporter:   r,
		Metrics:    reg,
	}), reg
}

func msg(offset int64, payload string) stream.Message {
	return stream.Message{Topic: "events", Offset: offset, Value: []byte(payload)}
}

func TestProcess_SampleScenarios(t *testing.T) {
	fi := &fakeIngestion{status: 202}
	var col report.Collector
	p, reg := newProcessor(fi, &col)

	for i, rec := range SampleRecords {
		o := p.Process(context.Background(), msg(int64(i), rec))
		require.True(t, o.Accepted(), "record %d: %+v", i, o)
		assert.Equal(t, report.StageDispatch, o.Stage)
		assert.Equal(t, 202, o.HTTPStatus)
	}
	require.Len(t, fi.single, 3)

	// scenario A: identity
	a := fi.single[0]
	cid, _ := a.Identity.Get(identity.CustomerID)
	idfa, _ := a.Identity.Get(identity.IOSAdvertisingID)
	assert.Equal(t, "john.doe@gmail.com", cid)
	assert.Equal(t, "5864e6b0-0d46-4667-a463-21d9493b6c10", idfa)
	assert.Equal(t, event.CustomEvent{
		Name:       "login",
		Type:       event.UserContent,
		Attributes: map[string]string{"first_name": "John", "last_name": "Doe"},
	}, a.Events[0])

	// scenario B: page
	b := fi.single[1]
	cid, _ = b.Identity.Get(identity.CustomerID)
	assert.Equal(t, "123", cid)
	assert.Equal(t, event.ScreenView{ScreenName: "electronics", Attributes: map[string]string{"page_subcategory": "televisions"}}, b.Events[0])

	// scenario C: commerce
	c, ok := fi.single[2].Events[0].(event.CommerceAction)
	require.True(t, ok)
	assert.Equal(t, "1000", c.TotalAmount.String())
	assert.Equal(t, "1000", c.Product.UnitAmount.String())
	assert.Equal(t, `Acme 42" LED TV`, c.Product.Name)

	assert.Len(t, col.Outcomes(), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.RecordsReceived))
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.Uploads.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.EventsMapped.WithLabelValues("commerce_event")))
}

func TestProcess_Faults(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    fault.Kind
		stage   report.Stage
		detail  string
	}{
		{"not json", `{nope`, fault.Parse, report.StageParse, "not valid JSON"},
		{"unknown type", `{"event_type":"unknown","properties":{}}`, fault.Classification, report.StageClassify, "unknown event_type: unknown"},
		{"unknown name", `{"event_type":"event","event_name":"checkout","properties":{}}`, fault.Classification, report.StageClassify, "unknown event_name: checkout"},
		{"missing field", `{"event_type":"page","properties":{"category":"tv"}}`, fault.Mapping, report.StageMap, "properties.subcategory"},
		{"bad price", `{"event_type":"event","event_name":"add_to_cart","properties":{"sku":"1","name":"n","price":"abc","transaction_id":"t","currency_code":"USD"}}`, fault.Mapping, report.StageMap, "properties.price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fi := &fakeIngestion{status: 202}
			var col report.Collector
			p, reg := newProcessor(fi, &col)

			o := p.Process(context.Background(), msg(9, tt.payload))
			assert.Equal(t, tt.kind, o.FaultKind)
			assert.Equal(t, tt.stage, o.Stage)
			assert.Contains(t, o.Detail, tt.detail)
			assert.Equal(t, "events/0/9", o.RecordID)
			assert.Equal(t, tt.payload, string(o.Payload))
			assert.Empty(t, fi.single, "faulted record must not be uploaded")
			assert.Len(t, col.Outcomes(), 1)
			assert.Equal(t, 1.0, testutil.ToFloat64(reg.Faults.WithLabelValues(string(tt.kind))))
		})
	}
}

func TestProcess_DispatchStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   upload.Status
	}{
		{"accepted", 202, nil, upload.Accepted},
		{"rejected", 400, nil, upload.Rejected},
		{"server error", 500, nil, upload.TransportError},
		{"network", 0, errors.New("dial tcp: refused"), upload.TransportError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newProcessor(&fakeIngestion{status: tt.status, err: tt.err}, nil)
			o := p.Process(context.Background(), msg(1, SampleRecords[1]))
			assert.Equal(t, tt.want, o.Status)
			assert.Empty(t, o.FaultKind)
			assert.NotEmpty(t, o.BatchReference)
		})
	}
}

func TestProcessBulk_MixedRecords(t *testing.T) {
	fi := &fakeIngestion{status: 202}
	var col report.Collector
	p, _ := newProcessor(fi, &col)

	msgs := []stream.Message{
		msg(0, SampleRecords[0]),
		msg(1, `{"event_type":"unknown","properties":{}}`),
		msg(2, SampleRecords[2]),
	}
	out := p.ProcessBulk(context.Background(), msgs)

	require.Len(t, out, 3)
	assert.True(t, out[0].Accepted())
	assert.Equal(t, fault.Classification, out[1].FaultKind)
	assert.True(t, out[2].Accepted())
	assert.NotEqual(t, out[0].BatchReference, out[2].BatchReference)
	require.Len(t, fi.bulkCalls, 1)
	assert.Len(t, fi.bulkCalls[0], 2)
	assert.Len(t, col.Outcomes(), 3)
}

type failingReporter struct{}

func (failingReporter) Report(context.Context, report.Outcome) error { return errors.New("disk full") }

func TestProcess_SinkErrorDoesNotChangeOutcome(t *testing.T) {
	p, reg := newProcessor(&fakeIngestion{status: 202}, failingReporter{})
	o := p.Process(context.Background(), msg(1, SampleRecords[1]))
	assert.True(t, o.Accepted())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.SinkErrors))
}

func TestProcess_DeadLettersFailures(t *testing.T) {
	store := deadletter.NewInMemoryStore()
	p, _ := newProcessor(&fakeIngestion{status: 400}, report.NewDeadLetterWriter(store))
	p.Process(context.Background(), msg(4, SampleRecords[1]))

	e, ok := store.Get("events/0/4")
	require.True(t, ok)
	assert.Equal(t, "rejected", e.Kind)
	assert.Equal(t, SampleRecords[1], string(e.Payload))
}

func TestRunner_SingleModeCommitsEverything(t *testing.T) {
	fi := &fakeIngestion{status: 202}
	var col report.Collector
	p, _ := newProcessor(fi, &col)
	src := stream.NewStaticStrings(append(SampleRecords, `{"event_type":"bogus","properties":{}}`)...)

	err := NewRunner(p, RunnerConfig{}).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1, 2, 3}, src.Committed())
	outs := col.Outcomes()
	require.Len(t, outs, 4)
	for i, o := range outs {
		assert.Equal(t, int64(i), parseOffset(t, o.RecordID), "single mode keeps input order")
	}
	assert.Len(t, fi.single, 3)
}

func parseOffset(t *testing.T, id string) int64 {
	t.Helper()
	parts := strings.Split(id, "/")
	require.Len(t, parts, 3)
	var n int64
	require.NoError(t, json.Unmarshal([]byte(parts[2]), &n))
	return n
}

func TestRunner_BulkAndWorkers(t *testing.T) {
	fi := &fakeIngestion{status: 202}
	var col report.Collector
	p, _ := newProcessor(fi, &col)

	var records []string
	for i := 0; i < 10; i++ {
		records = append(records, SampleRecords[i%3])
	}
	src := stream.NewStaticStrings(records...)
	err := NewRunner(p, RunnerConfig{Workers: 2, BulkSize: 3, BulkWait: 50 * time.Millisecond}).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Len(t, col.Outcomes(), 10)
	assert.ElementsMatch(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, src.Committed())
	total := 0
	for _, call := range fi.bulkCalls {
		assert.LessOrEqual(t, len(call), 3)
		total += len(call)
	}
	assert.Equal(t, 10, total)
	assert.Empty(t, fi.single)
}

// blockingSource yields its messages, then blocks until ctx ends.
type blockingSource struct {
	*stream.StaticSource
}

func (b blockingSource) Fetch(ctx context.Context) (stream.Message, error) {
	m, err := b.StaticSource.Fetch(ctx)
	if errors.Is(err, io.EOF) {
		<-ctx.Done()
		return stream.Message{}, ctx.Err()
	}
	return m, err
}

func TestRunner_CancelFinishesInflight(t *testing.T) {
	fi := &fakeIngestion{status: 202}
	var col report.Collector
	p, _ := newProcessor(fi, &col)
	src := blockingSource{stream.NewStaticStrings(SampleRecords...)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRunner(p, RunnerConfig{}).Run(ctx, src) }()

	require.Eventually(t, func() bool { return len(src.Committed()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
	assert.Len(t, col.Outcomes(), 3)
}

// gatedIngestion blocks every Submit until release is closed.
type gatedIngestion struct {
	started chan context.Context
	release chan struct{}
}

func (g *gatedIngestion) Submit(ctx context.Context, b batch.Batch) (upload.Response, error) {
	g.started <- ctx
	<-g.release
	return upload.Response{StatusCode: 202}, nil
}

func (g *gatedIngestion) SubmitBulk(ctx context.Context, bs []batch.Batch) (upload.Response, error) {
	return g.Submit(ctx, bs[0])
}

func TestRunner_CancelDuringDispatchStillCommits(t *testing.T) {
	gi := &gatedIngestion{started: make(chan context.Context, 1), release: make(chan struct{})}
	var col report.Collector
	p := NewProcessor(ProcessorConfig{Dispatcher: upload.NewDispatcher(gi), Reporter: &col, Metrics: metrics.NewRegistry()})
	src := blockingSource{stream.NewStaticStrings(SampleRecords[1])}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRunner(p, RunnerConfig{}).Run(ctx, src) }()

	var dispatchCtx context.Context
	select {
	case dispatchCtx = <-gi.started:
	case <-time.After(time.Second):
		t.Fatalf("dispatch never started")
	}
	cancel()
	assert.NoError(t, dispatchCtx.Err(), "in-flight dispatch must not see the cancellation")
	assert.Empty(t, src.Committed(), "nothing is committed before the dispatch returns")
	close(gi.release)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
	outs := col.Outcomes()
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Accepted())
	assert.Equal(t, []int64{0}, src.Committed())
}

type brokenSource struct{ stream.StaticSource }

func (*brokenSource) Fetch(context.Context) (stream.Message, error) {
	return stream.Message{}, errors.New("group coordinator lost")
}

func TestRunner_ReturnsFetchError(t *testing.T) {
	p, _ := newProcessor(&fakeIngestion{status: 202}, nil)
	err := NewRunner(p, RunnerConfig{}).Run(context.Background(), &brokenSource{})
	assert.ErrorContains(t, err, "group coordinator lost")
}

func TestSmokeTest(t *testing.T) {
	var out bytes.Buffer
	p, _ := newProcessor(&fakeIngestion{status: 202}, nil)
	ok, err := SmokeTest(context.Background(), p, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, strings.Count(out.String(), "PASS"))

	out.Reset()
	p, _ = newProcessor(&fakeIngestion{status: 401}, nil)
	ok, err = SmokeTest(context.Background(), p, &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, strings.Count(out.String(), "FAIL"))
	assert.Contains(t, out.String(), "http=401")
}

func TestChunk(t *testing.T) {
	msgs := []stream.Message{msg(0, ""), msg(1, ""), msg(2, ""), msg(3, ""), msg(4, "")}
	got := chunk(msgs, 2)
	require.Len(t, got, 3)
	assert.Len(t, got[2], 1)
	assert.Len(t, chunk(msgs, 5), 1)
}
