// Package identity resolves user and device identifiers from a raw record.
package identity

import (
	"sort"

	"evfwd/internal/record"
)

// Kind names an identifier slot. Each kind holds at most one value.
type Kind string

const (
	CustomerID           Kind = "customer_id"
	IOSAdvertisingID     Kind = "ios_advertising_id"
	AndroidAdvertisingID Kind = "android_advertising_id"
)

// Context is the finished, read-only set of identifiers for one record.
type Context struct {
	ids map[Kind]string
}

func (c Context) Get(k Kind) (string, bool) {
	v, ok := c.ids[k]
	return v, ok
}

func (c Context) Len() int { return len(c.ids) }

func (c Context) IsEmpty() bool { return len(c.ids) == 0 }

// Kinds returns the populated kinds in lexical order.
func (c Context) Kinds() []Kind {
	out := make([]Kind, 0, len(c.ids))
	for k := range c.ids {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Map returns a copy of the identifiers.
func (c Context) Map() map[Kind]string {
	out := make(map[Kind]string, len(c.ids))
	for k, v := range c.ids {
		out[k] = v
	}
	return out
}

// Builder accumulates identifiers. With returns a new Builder and never
// mutates the receiver.
type Builder struct {
	ids map[Kind]string
}

func (b Builder) With(k Kind, v string) Builder {
	next := make(map[Kind]string, len(b.ids)+1)
	for kk, vv := range b.ids {
		next[kk] = vv
	}
	next[k] = v
	return Builder{ids: next}
}

func (b Builder) Build() Context {
	out := make(map[Kind]string, len(b.ids))
	for k, v := range b.ids {
		out[k] = v
	}
	return Context{ids: out}
}

// Source maps one record field onto an identifier kind.
type Source struct {
	Kind     Kind
	Property bool // read from properties instead of the top level
	Field    string
}

// DefaultSources are applied in order; later sources overwrite earlier ones,
// so an email replaces the user_id as customer id.
var DefaultSources = []Source{
	{Kind: CustomerID, Field: "user_id"},
	{Kind: CustomerID, Property: true, Field: "email"},
	{Kind: IOSAdvertisingID, Property: true, Field: "idfa"},
	{Kind: AndroidAdvertisingID, Property: true, Field: "gaid"},
}

// Resolver builds a Context from a fixed list of sources.
type Resolver struct {
	sources []Source
}

func NewResolver(sources ...Source) *Resolver {
	if len(sources) == 0 {
		sources = DefaultSources
	}
	return &Resolver{sources: sources}
}

// Resolve never fails; absent or non-scalar fields are skipped.
func (r *Resolver) Resolve(rec record.Record) Context {
	var b Builder
	for _, s := range r.sources {
		v := rec.Top(s.Field)
		if s.Property {
			v = rec.Prop(s.Field)
		}
		text, ok := record.Text(v)
		if !ok || text == "" {
			continue
		}
		b = b.With(s.Kind, text)
	}
	return b.Build()
}
