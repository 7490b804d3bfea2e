// Package record wraps one raw JSON payload pulled from the stream.
package record

import (
	"github.com/tidwall/gjson"

	"evfwd/internal/fault"
)

// Record is a parsed raw record. Field access is lazy over the original bytes.
type Record struct {
	raw        []byte
	eventType  string
	properties gjson.Result
}

// Parse validates the envelope: a JSON object with a string event_type and an
// object properties. Anything else is a parse fault.
func Parse(payload []byte) (Record, error) {
	if !gjson.ValidBytes(payload) {
		return Record{}, fault.New(fault.Parse, "payload is not valid JSON")
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return Record{}, fault.New(fault.Parse, "payload is not a JSON object")
	}
	et := doc.Get("event_type")
	if !et.Exists() {
		return Record{}, fault.New(fault.Parse, "missing event_type")
	}
	if et.Type != gjson.String {
		return Record{}, fault.New(fault.Parse, "event_type is not a string")
	}
	props := doc.Get("properties")
	if !props.IsObject() {
		return Record{}, fault.New(fault.Parse, "missing properties object")
	}
	return Record{raw: payload, eventType: et.Str, properties: props}, nil
}

func (r Record) EventType() string { return r.eventType }

// EventName returns properties.event_name, falling back to the top-level
// event_name used by older producers.
func (r Record) EventName() (string, bool) {
	if v := r.properties.Get("event_name"); v.Type == gjson.String {
		return v.Str, true
	}
	if v := gjson.GetBytes(r.raw, "event_name"); v.Type == gjson.String {
		return v.Str, true
	}
	return "", false
}

// Top returns a top-level field.
func (r Record) Top(name string) gjson.Result {
	return gjson.GetBytes(r.raw, gjson.Escape(name))
}

// Prop returns a field of the properties object.
func (r Record) Prop(name string) gjson.Result {
	return r.properties.Get(gjson.Escape(name))
}

func (r Record) Raw() []byte { return r.raw }

// Text returns the scalar text of a string or number field. Numbers keep
// their literal digits.
func Text(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		return v.Str, true
	case gjson.Number:
		return v.Raw, true
	default:
		return "", false
	}
}
