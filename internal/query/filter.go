package query

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of date range bounds.
const DateLayout = "2006-01-02"

// Value is a typed filter value. Empty values are never encoded.
type Value interface {
	// IsEmpty reports whether the value would encode to nothing.
	IsEmpty() bool
	encode(name string, into url.Values)
}

// Scalar is a single-valued filter such as a user id.
type Scalar string

func (s Scalar) IsEmpty() bool { return strings.TrimSpace(string(s)) == "" }

func (s Scalar) encode(name string, into url.Values) {
	into.Set(name, strings.TrimSpace(string(s)))
}

// Set is a multi-valued filter such as selected statuses. Each member is
// sent as a repeated key.
type Set []string

func (s Set) IsEmpty() bool {
	for _, v := range s {
		if v != "" {
			return false
		}
	}
	return true
}

func (s Set) encode(name string, into url.Values) {
	for _, v := range s {
		if v != "" {
			into.Add(name, v)
		}
	}
}

// NumberRange bounds a numeric field. Either end may be nil. It encodes as
// min<Name> and max<Name>.
type NumberRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// Between builds a NumberRange from two bounds.
func Between(lo, hi decimal.Decimal) NumberRange {
	return NumberRange{Min: &lo, Max: &hi}
}

func (r NumberRange) IsEmpty() bool { return r.Min == nil && r.Max == nil }

func (r NumberRange) encode(name string, into url.Values) {
	if r.Min != nil {
		into.Set("min"+exported(name), r.Min.String())
	}
	if r.Max != nil {
		into.Set("max"+exported(name), r.Max.String())
	}
}

// DateRange bounds a date field. Zero times are open ends. It encodes as
// start<Name> and end<Name> in YYYY-MM-DD.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) IsEmpty() bool { return r.Start.IsZero() && r.End.IsZero() }

func (r DateRange) encode(name string, into url.Values) {
	if !r.Start.IsZero() {
		into.Set("start"+exported(name), r.Start.Format(DateLayout))
	}
	if !r.End.IsZero() {
		into.Set("end"+exported(name), r.End.Format(DateLayout))
	}
}

func exported(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
