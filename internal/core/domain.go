package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Shopping      Category = "Shopping"
	Entertainment Category = "Entertainment"
	Health        Category = "Health"
	Other         Category = "Other"
)

const (
	// DayLayout is the calendar-day form stored in the date field.
	DayLayout = "2006-01-02"
	// TimestampLayout is the ISO 8601 form stored in the fullDate field.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

type (
	Category string

	Expense struct {
		ID       string // Store-assigned, empty before creation
		Amount   float64
		Category Category
		Note     string
		Date     string    // YYYY-MM-DD, display only
		FullDate time.Time // Sort and filter key
	}

	// Input is the raw create-form submission.
	Input struct {
		Amount   string
		Category string
		Note     string
	}
)

// Categories returns the selectable categories in display order.
func Categories() []Category {
	return []Category{Food, Transport, Shopping, Entertainment, Health, Other}
}

func (c Category) String() string {
	return string(c)
}

var (
	ErrValidation    = errors.New("validation error")
	ErrInvalidAmount = errors.New("amount must be a positive number")
)

// ValidationError reports a rejected input field. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewExpense validates a create-form submission and stamps it with now.
// The returned expense has no ID; the store assigns one.
func NewExpense(in Input, now time.Time) (Expense, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return Expense{}, err
	}

	category := Category(strings.TrimSpace(in.Category))
	if category == "" {
		category = Food
	}

	now = now.UTC()
	return Expense{
		Amount:   amount,
		Category: category,
		Note:     strings.TrimSpace(in.Note),
		Date:     now.Format(DayLayout),
		FullDate: now,
	}, nil
}

// FormatTimestamp renders t the way fullDate is persisted.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a persisted fullDate value. RFC 3339 with or without
// fractional seconds is accepted.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
