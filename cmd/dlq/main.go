package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"evfwd/internal/deadletter"
	"evfwd/internal/log"
	"evfwd/internal/report"
)

func main() {
	var (
		dir       string
		republish bool
		bootstrap string
		topic     string
		keep      bool
	)
	flag.StringVar(&dir, "dir", "./data/dead-letter", "dead-letter store directory")
	flag.BoolVar(&republish, "republish", false, "republish entries to kafka instead of listing them")
	flag.StringVar(&bootstrap, "bootstrap", "localhost:9092", "kafka bootstrap servers")
	flag.StringVar(&topic, "topic", "", "target topic (default: each entry's source topic)")
	flag.BoolVar(&keep, "keep", false, "keep entries after a successful republish")
	flag.Parse()

	store, err := deadletter.NewPebbleStore(dir)
	if err != nil {
		log.GetLogger().Fatal("open dead-letter store", log.Error(err))
	}
	defer store.Close()

	if !republish {
		if err := list(store, os.Stdout); err != nil {
			log.GetLogger().Fatal("list failed", log.Error(err))
		}
		return
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(report.SplitBrokers(bootstrap)...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer w.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := replay(ctx, store, w, topic, !keep)
	if err != nil {
		log.GetLogger().Fatal("republish failed", log.Int("republished", n), log.Error(err))
	}
	log.GetLogger().Info("republished dead letters", log.Int("count", n))
}

type listed struct {
	ID      string    `json:"id"`
	Stage   string    `json:"stage"`
	Kind    string    `json:"kind"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
	Payload string    `json:"payload"`
}

func list(store deadletter.Store, w io.Writer) error {
	enc := json.NewEncoder(w)
	return store.Range(func(id string, e deadletter.Entry) error {
		return enc.Encode(listed{
			ID:      id,
			Stage:   e.Stage,
			Kind:    e.Kind,
			Reason:  e.Reason,
			At:      e.Time(),
			Payload: string(e.Payload),
		})
	})
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// replay publishes each entry's original payload and key, removing the entry
// once the broker has acknowledged it when remove is set.
func replay(ctx context.Context, store deadletter.Store, w messageWriter, topic string, remove bool) (int, error) {
	type pending struct {
		id string
		e  deadletter.Entry
	}
	var all []pending
	if err := store.Range(func(id string, e deadletter.Entry) error {
		all = append(all, pending{id, e})
		return nil
	}); err != nil {
		return 0, err
	}
	sort.SliceStable(all, func(i, j int) bool { return lessID(all[i].id, all[j].id) })

	n := 0
	for _, p := range all {
		target := topic
		if target == "" {
			target = p.e.Topic
		}
		if target == "" {
			return n, fmt.Errorf("entry %s has no source topic; pass -topic", p.id)
		}
		msg := kafka.Message{Topic: target, Key: p.e.Key, Value: p.e.Payload}
		if err := w.WriteMessages(ctx, msg); err != nil {
			return n, fmt.Errorf("publish %s: %w", p.id, err)
		}
		if remove {
			if err := store.Delete(p.id); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

// lessID orders topic/partition/offset ids numerically within a topic, so
// offset 9 replays before offset 10.
func lessID(a, b string) bool {
	at, ap, ao, aok := splitID(a)
	bt, bp, bo, bok := splitID(b)
	if !aok || !bok {
		return a < b
	}
	if at != bt {
		return at < bt
	}
	if ap != bp {
		return ap < bp
	}
	return ao < bo
}

func splitID(id string) (topic string, partition int, offset int64, ok bool) {
	i := strings.LastIndex(id, "/")
	if i < 0 {
		return "", 0, 0, false
	}
	j := strings.LastIndex(id[:i], "/")
	if j < 0 {
		return "", 0, 0, false
	}
	p, err := strconv.Atoi(id[j+1 : i])
	if err != nil {
		return "", 0, 0, false
	}
	o, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	return id[:j], p, o, true
}
