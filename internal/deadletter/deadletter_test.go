package deadletter

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	ps, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = ps.Close() })
	return map[string]Store{"memory": NewInMemoryStore(), "pebble": ps}
}

func TestStore_PutGetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			e := Entry{Stage: "mapping", Kind: "mapping", Reason: "missing", Payload: []byte(`{"a":1}`), At: 10}
			if err := s.Put("events/0/1", e); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok := s.Get("events/0/1")
			if !ok {
				t.Fatalf("missing entry")
			}
			if got.Reason != e.Reason || string(got.Payload) != string(e.Payload) || got.At != 10 {
				t.Fatalf("get mismatch: %+v vs %+v", got, e)
			}
			if err := s.Delete("events/0/1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok := s.Get("events/0/1"); ok {
				t.Fatalf("entry still present after delete")
			}
		})
	}
}

func TestStore_RangeOrdered(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"t/0/3", "t/0/1", "t/0/2"} {
				if err := s.Put(id, Entry{Reason: id}); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			var seen []string
			if err := s.Range(func(id string, e Entry) error {
				seen = append(seen, id)
				return nil
			}); err != nil {
				t.Fatalf("range err: %v", err)
			}
			if fmt.Sprint(seen) != "[t/0/1 t/0/2 t/0/3]" {
				t.Fatalf("range order: %v", seen)
			}

			stop := errors.New("stop")
			if err := s.Range(func(string, Entry) error { return stop }); !errors.Is(err, stop) {
				t.Fatalf("want stop error, got %v", err)
			}
		})
	}
}

func TestInMemoryStore_ConcurrentPuts(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				if err := s.Put(fmt.Sprintf("w%d/%d", w, i), Entry{At: int64(i)}); err != nil {
					t.Errorf("put: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	n := 0
	_ = s.Range(func(string, Entry) error { n++; return nil })
	if n != 1000 {
		t.Fatalf("count=%d want=1000", n)
	}
}
