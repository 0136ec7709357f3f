package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const dateLayout = "2006-01-02"

const (
	RUB Currency = "RUB"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

const (
	Food          Category = "food"
	Transport     Category = "transport"
	Entertainment Category = "entertainment"
	Utilities     Category = "utilities"
	Health        Category = "health"
	Education     Category = "education"
	Other         Category = "other"
)

type (
	Currency string
	Category string

	// Date is a calendar date without a time component. It is always
	// normalized to midnight UTC so that two dates compare by day only.
	Date struct {
		time.Time
	}

	// Expense is one logged spending event.
	Expense struct {
		ID       int64    `json:"id"`
		Title    string   `json:"title"`
		Amount   Money    `json:"amount"`
		Currency Currency `json:"currency"`
		Date     Date     `json:"date"`
		Category Category `json:"category"`
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrFutureDate      = errors.New("date is in the future")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidCategory = errors.New("invalid category")

	ErrNotFound    = errors.New("expense not found")
	ErrDuplicateID = errors.New("expense id already exists")
)

// ValidationError reports which field of a record broke an invariant.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Currencies returns the supported currencies in display order.
func Currencies() []Currency {
	return []Currency{RUB, USD, EUR}
}

func (c Currency) Valid() bool {
	switch c {
	case RUB, USD, EUR:
		return true
	}
	return false
}

// Categories returns the fixed category codes in display order.
func Categories() []Category {
	return []Category{Food, Transport, Entertainment, Utilities, Health, Education, Other}
}

func (c Category) Valid() bool {
	switch c {
	case Food, Transport, Entertainment, Utilities, Health, Education, Other:
		return true
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as observed in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays returns the date n calendar days away from d.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

// SameMonth reports whether d falls in the given year and month.
func (d Date) SameMonth(year int, month time.Month) bool {
	return d.Year() == year && d.Month() == month
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD"; an empty string or null yields the zero date.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrInvalidDate, s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ValidateFields checks every record invariant that does not depend on the
// current date.
func (e Expense) ValidateFields() error {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return invalid("title", ErrEmptyTitle)
	}
	if utf8.RuneCountInString(title) > 200 {
		return invalid("title", ErrTitleTooLong)
	}
	if err := e.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if !e.Currency.Valid() {
		return invalid("currency", ErrInvalidCurrency)
	}
	if err := e.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if !e.Category.Valid() {
		return invalid("category", ErrInvalidCategory)
	}
	return nil
}

// Validate checks all record invariants, including that the date is not
// after today.
func (e Expense) Validate(today Date) error {
	if err := e.ValidateFields(); err != nil {
		return err
	}
	if e.Date.After(today.Time) {
		return invalid("date", ErrFutureDate)
	}
	return nil
}
