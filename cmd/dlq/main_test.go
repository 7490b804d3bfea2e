package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"evfwd/internal/deadletter"
)

type fakeWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func seeded(t *testing.T) deadletter.Store {
	t.Helper()
	s := deadletter.NewInMemoryStore()
	_ = s.Put("raw/0/1", deadletter.Entry{Stage: "mapping", Kind: "mapping", Reason: "missing sku", Topic: "raw", Key: []byte("k1"), Payload: []byte(`{"a":1}`), At: 100})
	_ = s.Put("raw/0/2", deadletter.Entry{Stage: "dispatch", Kind: "transport_error", Topic: "raw", Payload: []byte(`{"b":2}`), At: 200})
	return s
}

func TestList(t *testing.T) {
	var buf bytes.Buffer
	if err := list(seeded(t), &buf); err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	var first listed
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.ID != "raw/0/1" || first.Payload != `{"a":1}` || first.Reason != "missing sku" {
		t.Fatalf("unexpected entry: %+v", first)
	}
}

func TestReplay_RemovesOnSuccess(t *testing.T) {
	s := seeded(t)
	fw := &fakeWriter{}
	n, err := replay(context.Background(), s, fw, "", true)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 2 || len(fw.msgs) != 2 {
		t.Fatalf("want 2 republished, got n=%d msgs=%d", n, len(fw.msgs))
	}
	if fw.msgs[0].Topic != "raw" || string(fw.msgs[0].Key) != "k1" {
		t.Fatalf("bad message: %+v", fw.msgs[0])
	}
	if _, ok := s.Get("raw/0/1"); ok {
		t.Fatalf("entry should be removed after republish")
	}
}

func TestReplay_KeepsOnFailureAndOverridesTopic(t *testing.T) {
	s := seeded(t)
	if _, err := replay(context.Background(), s, &fakeWriter{fail: true}, "", true); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := s.Get("raw/0/1"); !ok {
		t.Fatalf("entry must survive a failed publish")
	}

	fw := &fakeWriter{}
	if _, err := replay(context.Background(), s, fw, "replay", false); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if fw.msgs[1].Topic != "replay" {
		t.Fatalf("topic override ignored: %s", fw.msgs[1].Topic)
	}
	if _, ok := s.Get("raw/0/2"); !ok {
		t.Fatalf("entry should be kept")
	}
}

func TestReplay_OffsetOrder(t *testing.T) {
	s := deadletter.NewInMemoryStore()
	for _, id := range []string{"raw/0/10", "raw/0/9", "raw/1/2", "raw/0/100"} {
		_ = s.Put(id, deadletter.Entry{Topic: "raw", Payload: []byte(id)})
	}
	fw := &fakeWriter{}
	if _, err := replay(context.Background(), s, fw, "", false); err != nil {
		t.Fatalf("replay: %v", err)
	}
	var got []string
	for _, m := range fw.msgs {
		got = append(got, string(m.Value))
	}
	want := "raw/0/9 raw/0/10 raw/0/100 raw/1/2"
	if strings.Join(got, " ") != want {
		t.Fatalf("replay order: %v want %s", got, want)
	}
}

func TestLessID(t *testing.T) {
	if !lessID("a/0/9", "a/0/10") || lessID("a/0/10", "a/0/9") {
		t.Fatalf("offsets must compare numerically")
	}
	if !lessID("a/b/1/5", "a/b/2/0") {
		t.Fatalf("topics containing slashes must still split on the last two separators")
	}
	if !lessID("junk", "zzz") {
		t.Fatalf("unparseable ids fall back to string order")
	}
}
