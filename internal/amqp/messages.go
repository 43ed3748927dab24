package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"spendbook/internal/core"
)

// Event types published on the change feed.
const (
	EventExpenseCreated = "expense.created"
	EventExpenseDeleted = "expense.deleted"
)

// ExpensePayload is the wire form of a created expense.
type ExpensePayload struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Note     string  `json:"note"`
	Date     string  `json:"date"`
	FullDate string  `json:"fullDate"`
}

// ExpenseEvent announces a mutation. Expense is only set for creations.
type ExpenseEvent struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Expense   *ExpensePayload `json:"expense,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewExpenseCreatedEvent(id string, e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{
		Type: EventExpenseCreated,
		ID:   id,
		Expense: &ExpensePayload{
			Amount:   e.Amount,
			Category: e.Category.String(),
			Note:     e.Note,
			Date:     e.Date,
			FullDate: core.FormatTimestamp(e.FullDate),
		},
		Timestamp: time.Now().UTC(),
	}
}

func NewExpenseDeletedEvent(id string) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      EventExpenseDeleted,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes an event and checks its type.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventExpenseCreated, EventExpenseDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
