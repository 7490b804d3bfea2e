// Package mapping classifies raw records and maps them onto canonical events.
package mapping

import (
	"evfwd/internal/event"
	"evfwd/internal/fault"
	"evfwd/internal/record"
)

// Strategy maps one classified record onto an event. It returns a mapping
// fault, and no event, when a required field is absent or malformed.
type Strategy interface {
	Map(rec record.Record) (event.Event, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(rec record.Record) (event.Event, error)

func (f StrategyFunc) Map(rec record.Record) (event.Event, error) { return f(rec) }

type route struct {
	eventType string
	eventName string
}

// Classifier is a lookup table keyed by (event_type, event_name). Types that
// dispatch on name are registered with a non-empty name.
type Classifier struct {
	routes map[route]Strategy
	named  map[string]bool
}

func NewClassifier() *Classifier {
	return &Classifier{routes: make(map[route]Strategy), named: make(map[string]bool)}
}

// Register adds a route. An empty eventName routes on type alone.
func (c *Classifier) Register(eventType, eventName string, s Strategy) *Classifier {
	c.routes[route{eventType, eventName}] = s
	if eventName != "" {
		c.named[eventType] = true
	}
	return c
}

// Classify selects the strategy for rec or returns a classification fault.
func (c *Classifier) Classify(rec record.Record) (Strategy, error) {
	et := rec.EventType()
	if c.named[et] {
		name, ok := rec.EventName()
		if !ok || name == "" {
			return nil, fault.Newf(fault.Classification, "missing event_name for event_type %s", et)
		}
		s, ok := c.routes[route{et, name}]
		if !ok {
			return nil, fault.Newf(fault.Classification, "unknown event_name: %s", name)
		}
		return s, nil
	}
	s, ok := c.routes[route{et, ""}]
	if !ok {
		return nil, fault.Newf(fault.Classification, "unknown event_type: %s", et)
	}
	return s, nil
}

// DefaultClassifier knows page, identity and event/add_to_cart.
func DefaultClassifier() *Classifier {
	return NewClassifier().
		Register("page", "", StrategyFunc(MapPage)).
		Register("identity", "", StrategyFunc(MapIdentity)).
		Register("event", "add_to_cart", StrategyFunc(MapAddToCart))
}

// Mapper runs classification followed by the selected strategy.
type Mapper struct {
	classifier *Classifier
}

func NewMapper(c *Classifier) *Mapper {
	if c == nil {
		c = DefaultClassifier()
	}
	return &Mapper{classifier: c}
}

func (m *Mapper) Map(rec record.Record) (event.Event, error) {
	s, err := m.classifier.Classify(rec)
	if err != nil {
		return nil, err
	}
	return s.Map(rec)
}
