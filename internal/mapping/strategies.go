package mapping

import (
	"strings"

	"github.com/shopspring/decimal"

	"evfwd/internal/event"
	"evfwd/internal/fault"
	"evfwd/internal/record"
)

// fields collects required properties and remembers the first failure, so a
// strategy builds its event only after every field has been checked.
type fields struct {
	rec record.Record
	err *fault.Fault
}

func (f *fields) text(name string) string {
	if f.err != nil {
		return ""
	}
	v := f.rec.Prop(name)
	if !v.Exists() {
		f.err = fault.Field("properties."+name, "required")
		return ""
	}
	s, ok := record.Text(v)
	if !ok {
		f.err = fault.Field("properties."+name, "must be a string or number")
		return ""
	}
	if s == "" {
		f.err = fault.Field("properties."+name, "must not be empty")
		return ""
	}
	return s
}

// maxDecimalLen bounds a plain-notation amount. Exponent notation is refused
// so a rendered amount never grows past its input text.
const maxDecimalLen = 64

func (f *fields) decimal(name string) decimal.Decimal {
	s := f.text(name)
	if f.err != nil {
		return decimal.Decimal{}
	}
	if len(s) > maxDecimalLen || strings.ContainsAny(s, "eE") {
		f.err = fault.Field("properties."+name, "not a decimal: "+s)
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		f.err = fault.Field("properties."+name, "not a decimal: "+s)
		return decimal.Decimal{}
	}
	return d
}

func (f *fields) done() error {
	if f.err != nil {
		return f.err
	}
	return nil
}

// MapPage maps a page record onto a screen view named after its category.
func MapPage(rec record.Record) (event.Event, error) {
	f := fields{rec: rec}
	category := f.text("category")
	subcategory := f.text("subcategory")
	if err := f.done(); err != nil {
		return nil, err
	}
	return event.ScreenView{
		ScreenName: category,
		Attributes: map[string]string{"page_subcategory": subcategory},
	}, nil
}

// MapAddToCart maps an add_to_cart record onto a single-product commerce
// action. The price is used verbatim as unit and total amount.
func MapAddToCart(rec record.Record) (event.Event, error) {
	f := fields{rec: rec}
	sku := f.text("sku")
	name := f.text("name")
	price := f.decimal("price")
	txID := f.text("transaction_id")
	currency := f.text("currency_code")
	if err := f.done(); err != nil {
		return nil, err
	}
	return event.CommerceAction{
		Action:        event.AddToCart,
		Product:       event.Product{ID: sku, Name: name, UnitAmount: price},
		TransactionID: txID,
		CurrencyCode:  currency,
		TotalAmount:   price,
	}, nil
}

// MapIdentity maps an identity record onto a login custom event.
func MapIdentity(rec record.Record) (event.Event, error) {
	f := fields{rec: rec}
	first := f.text("first_name")
	last := f.text("last_name")
	if err := f.done(); err != nil {
		return nil, err
	}
	return event.CustomEvent{
		Name:       "login",
		Type:       event.UserContent,
		Attributes: map[string]string{"first_name": first, "last_name": last},
	}, nil
}
