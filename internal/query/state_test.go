package query

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersDefaults() Defaults {
	return Defaults{PageSize: 10, SortKey: "createdAt", SortDirection: Desc}
}

func TestNew_appliesDefaults(t *testing.T) {
	s := New(ordersDefaults())

	assert.Equal(t, 1, s.Page())
	assert.Equal(t, 10, s.PageSize())
	key, dir := s.Sort()
	assert.Equal(t, "createdAt", key)
	assert.Equal(t, Desc, dir)
	assert.Equal(t, "limit=10&page=1&sortBy=createdAt&sortOrder=desc", s.Encode())
}

func TestNew_fillsMissingDefaults(t *testing.T) {
	s := New(Defaults{})
	assert.Equal(t, 10, s.PageSize())
	_, dir := s.Sort()
	assert.Equal(t, Desc, dir)
	assert.Equal(t, "limit=10&page=1", s.Encode())
}

func TestSetPage_clampsBelowOne(t *testing.T) {
	s := New(ordersDefaults())
	s.SetPage(4)
	assert.Equal(t, 4, s.Page())
	s.SetPage(0)
	assert.Equal(t, 1, s.Page())
	s.SetPage(-3)
	assert.Equal(t, 1, s.Page())
}

func TestMutations_returnToFirstPage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*State)
	}{
		{"sort", func(s *State) { s.SetSort("totalAmount", Asc) }},
		{"search", func(s *State) { s.SetSearch("alice") }},
		{"filter", func(s *State) { s.SetFilter("status", Set{"Pending"}) }},
		{"clear filter", func(s *State) { s.ClearFilter("status") }},
		{"page size", func(s *State) { s.SetPageSize(25) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(ordersDefaults())
			s.SetPage(3)
			tt.mutate(s)
			assert.Equal(t, 1, s.Page())
		})
	}
}

func TestSetPageSize_ignoresNonPositive(t *testing.T) {
	s := New(ordersDefaults())
	s.SetPage(2)
	s.SetPageSize(0)
	assert.Equal(t, 10, s.PageSize())
	assert.Equal(t, 2, s.Page())
}

func TestSetSearch_trims(t *testing.T) {
	s := New(ordersDefaults())
	s.SetSearch("  lamp ")
	assert.Equal(t, "lamp", s.Search())
	assert.Equal(t, "lamp", s.Params().Get("searchQuery"))

	s.SetSearch("   ")
	assert.False(t, s.Params().Has("searchQuery"))
}

func TestSetFilter_statusRoundTrip(t *testing.T) {
	s := New(ordersDefaults())

	s.SetFilter("status", Set{"Pending"})
	assert.Equal(t, []string{"Pending"}, s.Params()["status"])

	s.SetFilter("status", Set{})
	assert.False(t, s.Params().Has("status"))
	_, ok := s.Filter("status")
	assert.False(t, ok)
}

func TestSetFilter_setRepeatsKey(t *testing.T) {
	s := New(ordersDefaults())
	s.SetFilter("status", Set{"Pending", "", "Shipped"})
	assert.Equal(t, []string{"Pending", "Shipped"}, s.Params()["status"])
}

func TestFilters_rangesEncoding(t *testing.T) {
	s := New(ordersDefaults())
	s.SetFilter("amount", Between(decimal.RequireFromString("10"), decimal.RequireFromString("99.5")))
	s.SetFilter("date", DateRange{
		Start: time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	s.SetFilter("userId", Scalar(" u-42 "))

	p := s.Params()
	assert.Equal(t, "10", p.Get("minAmount"))
	assert.Equal(t, "99.5", p.Get("maxAmount"))
	assert.Equal(t, "2024-03-01", p.Get("startDate"))
	assert.Equal(t, "2024-03-31", p.Get("endDate"))
	assert.Equal(t, "u-42", p.Get("userId"))
}

func TestFilters_openRangeOmitsMissingBound(t *testing.T) {
	lo := decimal.NewFromInt(5)
	s := New(ordersDefaults())
	s.SetFilter("price", NumberRange{Min: &lo})
	s.SetFilter("date", DateRange{End: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)})

	p := s.Params()
	assert.Equal(t, "5", p.Get("minPrice"))
	assert.False(t, p.Has("maxPrice"))
	assert.False(t, p.Has("startDate"))
	assert.Equal(t, "2024-01-02", p.Get("endDate"))
}

func TestSetFilter_emptyValuesRemoved(t *testing.T) {
	s := New(ordersDefaults())
	s.SetFilter("userId", Scalar(""))
	s.SetFilter("price", NumberRange{})
	s.SetFilter("date", DateRange{})
	s.SetFilter("role", nil)
	assert.Equal(t, "limit=10&page=1&sortBy=createdAt&sortOrder=desc", s.Encode())
}

func TestReset_reproducesDefaultRequest(t *testing.T) {
	s := New(ordersDefaults())
	want := s.Encode()

	s.SetSort("totalAmount", Asc)
	s.SetSearch("bob")
	s.SetFilter("status", Set{"Shipped"})
	s.SetPageSize(50)
	s.SetPage(7)
	require.NotEqual(t, want, s.Encode())

	s.Reset()
	assert.Equal(t, want, s.Encode())
}

func TestReset_restoresDefaultFilters(t *testing.T) {
	s := New(Defaults{Filters: map[string]Value{"role": Scalar("customer")}})
	s.ClearFilter("role")
	assert.False(t, s.Params().Has("role"))

	s.Reset()
	assert.Equal(t, "customer", s.Params().Get("role"))
}

func TestClone_isIndependent(t *testing.T) {
	s := New(ordersDefaults())
	s.SetFilter("status", Set{"Pending"})
	c := s.Clone()

	s.ClearFilter("status")
	s.SetPage(3)

	assert.Equal(t, 1, c.Page())
	assert.Equal(t, "Pending", c.Params().Get("status"))
}

func TestWithParamNames(t *testing.T) {
	names := DefaultParamNames()
	names.Search = "q"
	s := New(ordersDefaults(), WithParamNames(names))
	s.SetSearch("mug")
	assert.Equal(t, "mug", s.Params().Get("q"))
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, Desc, ParseDirection("DESC"))
	assert.Equal(t, Asc, ParseDirection("asc"))
	assert.Equal(t, Asc, ParseDirection("sideways"))
}

func TestView(t *testing.T) {
	s := New(ordersDefaults())
	s.SetFilter("status", Set{"Pending", "Shipped"})
	v := s.View()
	assert.Equal(t, 1, v.Page)
	assert.Equal(t, "createdAt", v.SortBy)
	assert.Equal(t, []string{"Pending", "Shipped"}, v.Filters["status"])
}
