package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"evfwd/internal/log"
	"evfwd/internal/report"
)

type options struct {
	count        int
	output       string
	bootstrap    string
	topic        string
	invalidRatio float64
	seed         int64
}

func main() {
	var opts options
	flag.IntVar(&opts.count, "count", 100, "number of records to generate")
	flag.StringVar(&opts.output, "output", "raw-events.jsonl", "output file (ignored when -bootstrap is set)")
	flag.StringVar(&opts.bootstrap, "bootstrap", "", "kafka bootstrap servers; publish instead of writing a file")
	flag.StringVar(&opts.topic, "topic", "raw-events", "kafka topic to publish to")
	flag.Float64Var(&opts.invalidRatio, "invalid-ratio", 0, "fraction of records that are deliberately malformed")
	flag.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	records := generate(rand.New(rand.NewSource(opts.seed)), opts.count, opts.invalidRatio)

	var err error
	if opts.bootstrap != "" {
		err = publish(context.Background(), opts.bootstrap, opts.topic, records)
	} else {
		err = writeFile(opts.output, records)
	}
	if err != nil {
		log.GetLogger().Fatal("generation failed", log.Error(err))
	}
	log.GetLogger().Info("generated records", log.Int("count", len(records)))
}

type rawRecord struct {
	userID  string
	payload []byte
}

var (
	firstNames = []string{"John", "Jane", "Ada", "Linus", "Grace"}
	lastNames  = []string{"Doe", "Roe", "Lovelace", "Torvalds", "Hopper"}
	categories = map[string][]string{
		"electronics": {"televisions", "laptops", "phones"},
		"home":        {"kitchen", "garden"},
		"books":       {"fiction", "science"},
	}
	products = []struct{ sku, name string }{
		{"12345", `Acme 42" LED TV`},
		{"23456", "Acme Laptop 14"},
		{"34567", "Chef Knife"},
	}
)

func generate(rng *rand.Rand, count int, invalidRatio float64) []rawRecord {
	out := make([]rawRecord, 0, count)
	cats := make([]string, 0, len(categories))
	for c := range categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	for i := 0; i < count; i++ {
		userID := fmt.Sprintf("%d", 100+rng.Intn(900))
		var doc map[string]any
		switch i % 3 {
		case 0:
			fn, ln := firstNames[rng.Intn(len(firstNames))], lastNames[rng.Intn(len(lastNames))]
			doc = map[string]any{
				"event_type":  "identity",
				"customer_id": userID,
				"properties": map[string]any{
					"email":      strings.ToLower(fn+"."+ln) + "@example.com",
					"first_name": fn,
					"last_name":  ln,
					"idfa":       fmt.Sprintf("%08x-0000-4000-8000-%012x", rng.Uint32(), rng.Int63n(1<<48)),
				},
			}
		case 1:
			cat := cats[rng.Intn(len(cats))]
			subs := categories[cat]
			doc = map[string]any{
				"event_type": "page",
				"user_id":    userID,
				"properties": map[string]any{"category": cat, "subcategory": subs[rng.Intn(len(subs))]},
			}
		default:
			p := products[rng.Intn(len(products))]
			doc = map[string]any{
				"event_type": "event",
				"event_name": "add_to_cart",
				"user_id":    userID,
				"properties": map[string]any{
					"currency_code":  "USD",
					"price":          fmt.Sprintf("%d.%02d", 10+rng.Intn(2000), rng.Intn(100)),
					"name":           p.name,
					"transaction_id": fmt.Sprintf("tx%06d", i),
					"sku":            p.sku,
				},
			}
		}
		if invalidRatio > 0 && rng.Float64() < invalidRatio {
			corrupt(rng, doc)
		}
		b, _ := json.Marshal(doc)
		out = append(out, rawRecord{userID: userID, payload: b})
	}
	return out
}

var required = map[string][]string{
	"identity": {"first_name", "last_name"},
	"page":     {"category", "subcategory"},
	"event":    {"sku", "name", "price", "transaction_id", "currency_code"},
}

// corrupt drops a required property or renames the event type.
func corrupt(rng *rand.Rand, doc map[string]any) {
	if rng.Intn(2) == 0 {
		doc["event_type"] = "unknown"
		return
	}
	fields := required[doc["event_type"].(string)]
	delete(doc["properties"].(map[string]any), fields[rng.Intn(len(fields))])
}

func writeFile(path string, records []rawRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	return writeLines(f, records)
}

func writeLines(w io.Writer, records []rawRecord) error {
	for i, r := range records {
		if _, err := fmt.Fprintf(w, "%s\n", r.payload); err != nil {
			return fmt.Errorf("write record %d: %w", i+1, err)
		}
	}
	return nil
}

func publish(ctx context.Context, bootstrap, topic string, records []rawRecord) error {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(report.SplitBrokers(bootstrap)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer w.Close()
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = kafka.Message{Key: []byte(r.userID), Value: r.payload}
	}
	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
