// Package event defines the canonical analytics events sent upstream.
//
// Each variant marshals to the ingestion API envelope:
//
//	{"event_type": "<kind>", "data": {...}}
package event

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Kind is the wire event_type of a variant.
type Kind string

const (
	KindScreenView Kind = "screen_view"
	KindCommerce   Kind = "commerce_event"
	KindCustom     Kind = "custom_event"
)

// Event is a closed set: ScreenView, CommerceAction and CustomEvent.
type Event interface {
	Kind() Kind
	sealed()
}

// ScreenView records a page or screen visit.
type ScreenView struct {
	ScreenName string
	Attributes map[string]string
}

func (ScreenView) Kind() Kind { return KindScreenView }
func (ScreenView) sealed()    {}

func (e ScreenView) MarshalJSON() ([]byte, error) {
	return envelope(e.Kind(), struct {
		ScreenName       string            `json:"screen_name"`
		CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
	}{e.ScreenName, e.Attributes})
}

// ProductAction is the commerce action kind.
type ProductAction string

const AddToCart ProductAction = "add_to_cart"

type Product struct {
	ID         string
	Name       string
	UnitAmount decimal.Decimal
}

// CommerceAction is a single-product commerce event. TotalAmount is not
// derived from the product; callers set it.
type CommerceAction struct {
	Action        ProductAction
	Product       Product
	TransactionID string
	CurrencyCode  string
	TotalAmount   decimal.Decimal
}

func (CommerceAction) Kind() Kind { return KindCommerce }
func (CommerceAction) sealed()    {}

type wireProduct struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Price              json.Number `json:"price"`
	Quantity           int         `json:"quantity"`
	TotalProductAmount json.Number `json:"total_product_amount"`
}

type wireProductAction struct {
	Action        ProductAction `json:"action"`
	TransactionID string        `json:"transaction_id"`
	TotalAmount   json.Number   `json:"total_amount"`
	Products      []wireProduct `json:"products"`
}

func (e CommerceAction) MarshalJSON() ([]byte, error) {
	unit := number(e.Product.UnitAmount)
	return envelope(e.Kind(), struct {
		ProductAction wireProductAction `json:"product_action"`
		CurrencyCode  string            `json:"currency_code"`
	}{
		ProductAction: wireProductAction{
			Action:        e.Action,
			TransactionID: e.TransactionID,
			TotalAmount:   number(e.TotalAmount),
			Products: []wireProduct{{
				ID:                 e.Product.ID,
				Name:               e.Product.Name,
				Price:              unit,
				Quantity:           1,
				TotalProductAmount: unit,
			}},
		},
		CurrencyCode: e.CurrencyCode,
	})
}

// CustomType tags a custom event.
type CustomType string

const (
	Navigation  CustomType = "navigation"
	UserContent CustomType = "user_content"
	Transaction CustomType = "transaction"
	Other       CustomType = "other"
)

type CustomEvent struct {
	Name       string
	Type       CustomType
	Attributes map[string]string
}

func (CustomEvent) Kind() Kind { return KindCustom }
func (CustomEvent) sealed()    {}

func (e CustomEvent) MarshalJSON() ([]byte, error) {
	return envelope(e.Kind(), struct {
		EventName        string            `json:"event_name"`
		CustomEventType  CustomType        `json:"custom_event_type"`
		CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
	}{e.Name, e.Type, e.Attributes})
}

func envelope(kind Kind, data any) ([]byte, error) {
	return json.Marshal(struct {
		EventType Kind `json:"event_type"`
		Data      any  `json:"data"`
	}{kind, data})
}

// number renders d with its exact digits as a JSON number.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
