package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AllCategories selects every category.
const AllCategories Category = "All"

const (
	AllTime   DateRange = "All"
	ThisMonth DateRange = "This Month"
	LastMonth DateRange = "Last Month"
)

type (
	DateRange string

	// Criteria is the filter state owned by the caller.
	Criteria struct {
		Category Category
		Range    DateRange
	}

	// CategoryAmount represents an amount aggregated by category name.
	CategoryAmount struct {
		Category Category
		Amount   decimal.Decimal
	}

	// Summary is the filtered view of an expense list and its total.
	Summary struct {
		Items []Expense
		Total decimal.Decimal
	}
)

// DateRanges returns the selectable date ranges in display order.
func DateRanges() []DateRange {
	return []DateRange{AllTime, ThisMonth, LastMonth}
}

func (r DateRange) String() string {
	return string(r)
}

// ParseCategoryFilter maps a filter value onto a category. An empty value
// means all categories. Values outside the canonical set are kept as-is so
// that stored free-form categories can still be selected by exact match.
func ParseCategoryFilter(s string) Category {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllCategories
	}
	return Category(s)
}

// ParseDateRange maps a filter value onto the date range set. An empty value
// means all time.
func ParseDateRange(s string) (DateRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllTime, nil
	}
	for _, r := range DateRanges() {
		if s == string(r) {
			return r, nil
		}
	}
	return "", &ValidationError{Field: "range", Value: s, Err: ErrValidation}
}

// Filter applies c to items and totals the result. Date ranges are evaluated
// against now in now's location. Input order is preserved and items is never
// modified.
func Filter(items []Expense, c Criteria, now time.Time) Summary {
	out := make([]Expense, 0, len(items))
	for _, e := range items {
		if !matchesCategory(e, c.Category) {
			continue
		}
		if !matchesRange(e, c.Range, now) {
			continue
		}
		out = append(out, e)
	}
	return Summary{Items: out, Total: Sum(out)}
}

// Sum adds up the amounts of items without rounding. Each float is taken at
// its shortest decimal form, so 1.005 counts as exactly 1.005 and a single
// such item renders as "1.01" (half away from zero), not the binary-float
// "1.00".
func Sum(items []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range items {
		total = total.Add(decimal.NewFromFloat(e.Amount))
	}
	return total
}

// TotalString renders the total with two fractional digits.
func (s Summary) TotalString() string {
	return FormatAmount(s.Total)
}

// Count returns the number of filtered items.
func (s Summary) Count() int {
	return len(s.Items)
}

// ByCategory returns per-category totals, ordered by first appearance.
func (s Summary) ByCategory() []CategoryAmount {
	index := map[Category]int{}
	var out []CategoryAmount
	for _, e := range s.Items {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryAmount{Category: e.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(decimal.NewFromFloat(e.Amount))
	}
	return out
}

func matchesCategory(e Expense, c Category) bool {
	if c == "" || c == AllCategories {
		return true
	}
	return e.Category == c
}

func matchesRange(e Expense, r DateRange, now time.Time) bool {
	switch r {
	case ThisMonth:
		return sameMonth(e.FullDate, now)
	case LastMonth:
		// Day 1 keeps the normalization from spilling into the current month.
		prev := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location())
		return sameMonth(e.FullDate, prev)
	default:
		return true
	}
}

func sameMonth(t, ref time.Time) bool {
	if t.IsZero() {
		return false
	}
	t = t.In(ref.Location())
	return t.Year() == ref.Year() && t.Month() == ref.Month()
}
