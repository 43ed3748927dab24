package expenses

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"spendbook/internal/core"
	"spendbook/internal/docstore"
)

// Document field names.
const (
	fieldAmount   = "amount"
	fieldCategory = "category"
	fieldNote     = "note"
	fieldDate     = "date"
	fieldFullDate = "fullDate"
)

// toFields encodes e for the store. The id is never written.
func toFields(e core.Expense) docstore.Fields {
	return docstore.Fields{
		fieldAmount:   e.Amount,
		fieldCategory: e.Category.String(),
		fieldNote:     e.Note,
		fieldDate:     e.Date,
		fieldFullDate: core.FormatTimestamp(e.FullDate),
	}
}

// fromDocument normalizes a schemaless document into an expense.
func fromDocument(d docstore.Document) core.Expense {
	return core.Expense{
		ID:       d.ID,
		Amount:   amountOf(d.Fields[fieldAmount]),
		Category: core.Category(stringOf(d.Fields[fieldCategory])),
		Note:     stringOf(d.Fields[fieldNote]),
		Date:     stringOf(d.Fields[fieldDate]),
		FullDate: timeOf(d.Fields[fieldFullDate]),
	}
}

func amountOf(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func timeOf(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		t, err := core.ParseTimestamp(x)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}
