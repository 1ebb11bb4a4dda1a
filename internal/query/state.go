// Package query holds the user-controlled parameters of a list request and
// encodes them into backend query parameters. It performs no I/O.
package query

import (
	"maps"
	"net/url"
	"strconv"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection maps any value other than "desc" (case-insensitive) to Asc.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// ParamNames are the query parameter names understood by the backend.
type ParamNames struct {
	Page      string
	Limit     string
	SortBy    string
	SortOrder string
	Search    string
}

// DefaultParamNames returns page, limit, sortBy, sortOrder and searchQuery.
func DefaultParamNames() ParamNames {
	return ParamNames{
		Page:      "page",
		Limit:     "limit",
		SortBy:    "sortBy",
		SortOrder: "sortOrder",
		Search:    "searchQuery",
	}
}

// Defaults are the resource-specific values restored by Reset.
type Defaults struct {
	PageSize      int
	SortKey       string
	SortDirection Direction
	Filters       map[string]Value
}

// State is the query of one list controller. It is not safe for concurrent
// use; the owning controller serialises access.
type State struct {
	defaults Defaults
	names    ParamNames

	page     int
	pageSize int
	sortKey  string
	sortDir  Direction
	search   string
	filters  map[string]Value
}

// Option configures a State.
type Option func(*State)

// WithParamNames overrides the backend parameter names.
func WithParamNames(n ParamNames) Option {
	return func(s *State) { s.names = n }
}

// New creates a State initialised to d.
func New(d Defaults, opts ...Option) *State {
	if d.PageSize <= 0 {
		d.PageSize = 10
	}
	if d.SortDirection == "" {
		d.SortDirection = Desc
	}
	s := &State{defaults: d, names: DefaultParamNames()}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset restores page 1, the default page size and sort, an empty search and
// the default filters.
func (s *State) Reset() {
	s.page = 1
	s.pageSize = s.defaults.PageSize
	s.sortKey = s.defaults.SortKey
	s.sortDir = s.defaults.SortDirection
	s.search = ""
	s.filters = maps.Clone(s.defaults.Filters)
	if s.filters == nil {
		s.filters = make(map[string]Value)
	}
}

func (s *State) Page() int      { return s.page }
func (s *State) PageSize() int  { return s.pageSize }
func (s *State) Search() string { return s.search }

// Sort returns the sort key and direction.
func (s *State) Sort() (string, Direction) { return s.sortKey, s.sortDir }

// Filter returns the named filter value.
func (s *State) Filter(name string) (Value, bool) {
	v, ok := s.filters[name]
	return v, ok
}

// SetPage moves to page n, clamping values below 1.
func (s *State) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	s.page = n
}

// SetPageSize changes the page size and returns to page 1. Non-positive sizes
// are ignored.
func (s *State) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	s.pageSize = n
	s.page = 1
}

// SetSort changes the sort and returns to page 1.
func (s *State) SetSort(key string, dir Direction) {
	if dir != Desc {
		dir = Asc
	}
	s.sortKey = strings.TrimSpace(key)
	s.sortDir = dir
	s.page = 1
}

// SetSearch changes the free-text search and returns to page 1.
func (s *State) SetSearch(text string) {
	s.search = strings.TrimSpace(text)
	s.page = 1
}

// SetFilter sets the named filter and returns to page 1. A nil or empty
// value removes the filter.
func (s *State) SetFilter(name string, v Value) {
	if v == nil || v.IsEmpty() {
		delete(s.filters, name)
	} else {
		s.filters[name] = v
	}
	s.page = 1
}

// ClearFilter removes the named filter and returns to page 1.
func (s *State) ClearFilter(name string) {
	s.SetFilter(name, nil)
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := *s
	c.filters = maps.Clone(s.filters)
	return &c
}

// Params builds the backend query parameters. Empty search and empty filters
// are omitted.
func (s *State) Params() url.Values {
	v := url.Values{}
	v.Set(s.names.Page, strconv.Itoa(s.page))
	v.Set(s.names.Limit, strconv.Itoa(s.pageSize))
	if s.sortKey != "" {
		v.Set(s.names.SortBy, s.sortKey)
		v.Set(s.names.SortOrder, string(s.sortDir))
	}
	if s.search != "" {
		v.Set(s.names.Search, s.search)
	}
	for name, f := range s.filters {
		if f != nil && !f.IsEmpty() {
			f.encode(name, v)
		}
	}
	return v
}

// Encode returns Params in a deterministic, key-sorted form.
func (s *State) Encode() string {
	return s.Params().Encode()
}

// View is a JSON-friendly copy of the state.
type View struct {
	Page      int                 `json:"page"`
	PageSize  int                 `json:"pageSize"`
	SortBy    string              `json:"sortBy,omitempty"`
	SortOrder Direction           `json:"sortOrder,omitempty"`
	Search    string              `json:"search,omitempty"`
	Filters   map[string][]string `json:"filters,omitempty"`
}

// View returns a copy of the state for rendering.
func (s *State) View() View {
	out := View{
		Page:      s.page,
		PageSize:  s.pageSize,
		SortBy:    s.sortKey,
		SortOrder: s.sortDir,
		Search:    s.search,
	}
	if len(s.filters) > 0 {
		out.Filters = make(map[string][]string, len(s.filters))
		for name, f := range s.filters {
			if f == nil || f.IsEmpty() {
				continue
			}
			enc := url.Values{}
			f.encode(name, enc)
			for k, vals := range enc {
				out.Filters[k] = vals
			}
		}
	}
	return out
}
