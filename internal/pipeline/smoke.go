package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"evfwd/internal/stream"
)

// SampleRecords holds one record of each supported kind.
var SampleRecords = []string{
	`{ "event_type" : "identity", "customer_id" : "123", "properties": { "email" : "john.doe@gmail.com", "first_name" : "John", "last_name" : "Doe", "idfa" : "5864e6b0-0d46-4667-a463-21d9493b6c10" } }`,
	`{"event_type":"page","user_id":"123","properties":{"category":"electronics","subcategory":"televisions"}}`,
	`{ "event_type" : "event", "event_name" : "add_to_cart", "user_id" : "123", "properties": { "currency_code": "USD", "price": "1000", "name": "Acme 42\" LED TV", "transaction_id": "abcdef12345", "sku": "12345" } }`,
}

// SmokeTest feeds SampleRecords through p one at a time and prints a
// PASS/FAIL line per record. It reports whether every record was accepted.
func SmokeTest(ctx context.Context, p *Processor, out io.Writer) (bool, error) {
	src := stream.NewStaticStrings(SampleRecords...)
	defer src.Close()

	pass := true
	for {
		msg, err := src.Fetch(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, err
		}
		o := p.Process(ctx, msg)
		verdict := "PASS"
		if !o.Accepted() {
			verdict = "FAIL"
			pass = false
		}
		fmt.Fprintf(out, "%s %-8s %s", verdict, o.EventType, o.Label())
		if o.HTTPStatus != 0 {
			fmt.Fprintf(out, " http=%d", o.HTTPStatus)
		}
		if o.Detail != "" && !o.Accepted() {
			fmt.Fprintf(out, " (%s)", o.Detail)
		}
		fmt.Fprintln(out)
		if err := src.Commit(ctx, msg); err != nil {
			return false, err
		}
	}
	return pass, nil
}
