package deadletter

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store on a local PebbleDB directory.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		// Dead letters are rare; a small memtable is plenty.
		MemTableSize:    16 << 20,
		WALBytesPerSync: 1 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func encodeEntry(e Entry) ([]byte, error) { return json.Marshal(e) }
func decodeEntry(val []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Put overwrites any earlier entry for id. Synced so a crash right after a
// drop does not lose the record.
func (p *PebbleStore) Put(id string, e Entry) error {
	b, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := p.db.Set([]byte(id), b, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (p *PebbleStore) Get(id string) (Entry, bool) {
	v, closer, err := p.db.Get([]byte(id))
	if err != nil {
		return Entry{}, false
	}
	defer closer.Close()
	e, err := decodeEntry(v)
	if err != nil {
		return Entry{}, false
	}
	return e, true
}

func (p *PebbleStore) Delete(id string) error {
	if err := p.db.Delete([]byte(id), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (p *PebbleStore) Range(fn func(id string, e Entry) error) error {
	it, err := p.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := string(it.Key())
		v := append([]byte(nil), it.Value()...)
		e, err := decodeEntry(v)
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		if err := fn(k, e); err != nil {
			return err
		}
	}
	return it.Error()
}
