// Package query is the aggregation engine: pure functions from an expense
// collection (and, for the list view, a filter configuration) to derived
// views. Nothing here holds state; every function is safe to call
// concurrently and repeatedly.
package query

import (
	"errors"
	"slices"
	"strings"

	"spesa/internal/core"
)

type (
	SortField     string
	SortDirection string
)

const (
	SortByDate     SortField = "date"
	SortByAmount   SortField = "amount"
	SortByCategory SortField = "category"

	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

var (
	ErrInvalidSortField     = errors.New("invalid sort field")
	ErrInvalidSortDirection = errors.New("invalid sort direction")
)

func (f SortField) Valid() bool {
	switch f {
	case SortByDate, SortByAmount, SortByCategory:
		return true
	}
	return false
}

func (d SortDirection) Valid() bool {
	return d == Asc || d == Desc
}

// Filters is the transient filter/sort configuration of the list view.
// Zero values of Search, Category, StartDate and EndDate mean "no filter".
type Filters struct {
	Search    string        `json:"searchQuery"`
	Category  core.Category `json:"category"`
	StartDate core.Date     `json:"startDate"`
	EndDate   core.Date     `json:"endDate"`
	SortBy    SortField     `json:"sortBy"`
	SortOrder SortDirection `json:"sortOrder"`
}

// DefaultFilters shows everything, newest first.
func DefaultFilters() Filters {
	return Filters{SortBy: SortByDate, SortOrder: Desc}
}

// OptionalDate is a date field of a patch. Set records that the key was
// present in the decoded document, so null and "" clear the filter while an
// absent key leaves it alone.
type OptionalDate struct {
	Date core.Date
	Set  bool
}

// SetDate returns a present OptionalDate holding d. A zero d clears.
func SetDate(d core.Date) OptionalDate {
	return OptionalDate{Date: d, Set: true}
}

// UnmarshalJSON is called for null too, unlike on pointer fields.
func (o *OptionalDate) UnmarshalJSON(b []byte) error {
	if err := o.Date.UnmarshalJSON(b); err != nil {
		return err
	}
	o.Set = true
	return nil
}

func (o OptionalDate) MarshalJSON() ([]byte, error) {
	return o.Date.MarshalJSON()
}

// FilterPatch is a partial update of Filters. Nil fields are left as they are;
// a pointer to a zero value clears that filter. Dates use OptionalDate.
type FilterPatch struct {
	Search    *string        `json:"searchQuery,omitempty"`
	Category  *core.Category `json:"category,omitempty"`
	StartDate OptionalDate   `json:"startDate"`
	EndDate   OptionalDate   `json:"endDate"`
	SortBy    *SortField     `json:"sortBy,omitempty"`
	SortOrder *SortDirection `json:"sortOrder,omitempty"`
}

func (p FilterPatch) Validate() error {
	if p.Category != nil && *p.Category != "" && !p.Category.Valid() {
		return core.ErrInvalidCategory
	}
	if p.SortBy != nil && !p.SortBy.Valid() {
		return ErrInvalidSortField
	}
	if p.SortOrder != nil && !p.SortOrder.Valid() {
		return ErrInvalidSortDirection
	}
	return nil
}

// Merge returns f with every present field of p applied (shallow merge).
func (f Filters) Merge(p FilterPatch) Filters {
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.StartDate.Set {
		f.StartDate = p.StartDate.Date
	}
	if p.EndDate.Set {
		f.EndDate = p.EndDate.Date
	}
	if p.SortBy != nil {
		f.SortBy = *p.SortBy
	}
	if p.SortOrder != nil {
		f.SortOrder = *p.SortOrder
	}
	return f
}

// Key is a stable textual form of f, usable as a cache key.
func (f Filters) Key() string {
	return strings.Join([]string{
		strings.ToLower(f.Search),
		string(f.Category),
		f.StartDate.String(),
		f.EndDate.String(),
		string(f.SortBy),
		string(f.SortOrder),
	}, "|")
}

// Matches reports whether e passes the search, category and date filters.
func (f Filters) Matches(e core.Expense) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(f.Search)) {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if !f.StartDate.IsZero() && e.Date.Before(f.StartDate.Time) {
		return false
	}
	if !f.EndDate.IsZero() && e.Date.After(f.EndDate.Time) {
		return false
	}
	return true
}

// Apply runs the filter+sort pipeline and returns a new slice; expenses is
// not modified. The sort is stable: ties keep their order from the input
// in both directions.
func Apply(expenses []core.Expense, f Filters) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.Matches(e) {
			out = append(out, e)
		}
	}

	cmp := comparator(f.SortBy)
	if cmp == nil {
		return out
	}
	sign := 1
	if f.SortOrder == Desc {
		sign = -1
	}
	slices.SortStableFunc(out, func(a, b core.Expense) int {
		return sign * cmp(a, b)
	})
	return out
}

func comparator(field SortField) func(a, b core.Expense) int {
	switch field {
	case SortByDate:
		return func(a, b core.Expense) int { return a.Date.Compare(b.Date) }
	case SortByAmount:
		return func(a, b core.Expense) int { return a.Amount.Cmp(b.Amount) }
	case SortByCategory:
		return func(a, b core.Expense) int { return strings.Compare(string(a.Category), string(b.Category)) }
	}
	return nil
}
