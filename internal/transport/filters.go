package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pitabwire/shopdesk/internal/query"
	"github.com/pitabwire/shopdesk/internal/store"
	"github.com/pitabwire/shopdesk/model"
)

type filterKind int

const (
	filterScalar filterKind = iota
	filterSet
	filterNumberRange
	filterDateRange
)

// filterSpec is one named filter a list route accepts. allowed, when set,
// restricts scalar and set members.
type filterSpec struct {
	kind    filterKind
	allowed []string
}

var orderFilters = map[string]filterSpec{
	store.OrderFilterStatus: {kind: filterSet, allowed: statusNames()},
	store.OrderFilterDate:   {kind: filterDateRange},
	store.OrderFilterAmount: {kind: filterNumberRange},
	store.OrderFilterUser:   {kind: filterScalar},
}

var productFilters = map[string]filterSpec{
	store.ProductFilterCategories: {kind: filterSet},
	store.ProductFilterPrice:      {kind: filterNumberRange},
}

var customerFilters = map[string]filterSpec{
	store.CustomerFilterRole: {kind: filterSet},
}

func statusNames() []string {
	out := make([]string, len(model.AllOrderStatuses))
	for i, s := range model.AllOrderStatuses {
		out[i] = string(s)
	}
	return out
}

type filterRequest struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type numberRangeBody struct {
	Min *decimal.Decimal `json:"min"`
	Max *decimal.Decimal `json:"max"`
}

type dateRangeBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// parse turns the raw request value into a typed filter value. A missing or
// null value yields nil, which clears the filter.
func (s filterSpec) parse(raw json.RawMessage) (query.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch s.kind {
	case filterScalar:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.New("expected a string")
		}
		if err := s.check(v); err != nil {
			return nil, err
		}
		return query.Scalar(v), nil
	case filterSet:
		var members []string
		if err := json.Unmarshal(raw, &members); err != nil {
			var one string
			if json.Unmarshal(raw, &one) != nil {
				return nil, errors.New("expected a list of strings")
			}
			members = []string{one}
		}
		for i, m := range members {
			members[i] = strings.TrimSpace(m)
			if err := s.check(members[i]); err != nil {
				return nil, err
			}
		}
		return query.Set(members), nil
	case filterNumberRange:
		var body numberRangeBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, errors.New("expected {min, max} numbers")
		}
		if body.Min != nil && body.Max != nil && body.Min.GreaterThan(*body.Max) {
			return nil, errors.New("min is greater than max")
		}
		return query.NumberRange{Min: body.Min, Max: body.Max}, nil
	case filterDateRange:
		var body dateRangeBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, errors.New("expected {start, end} dates")
		}
		start, err := parseDate(body.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseDate(body.End)
		if err != nil {
			return nil, err
		}
		if !start.IsZero() && !end.IsZero() && start.After(end) {
			return nil, errors.New("start is after end")
		}
		return query.DateRange{Start: start, End: end}, nil
	}
	return nil, errors.New("unsupported filter")
}

func (s filterSpec) check(v string) error {
	if v == "" || len(s.allowed) == 0 || slices.Contains(s.allowed, v) {
		return nil
	}
	return fmt.Errorf("%q is not one of %s", v, strings.Join(s.allowed, ", "))
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(query.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a %s date", v, query.DateLayout)
	}
	return t, nil
}
