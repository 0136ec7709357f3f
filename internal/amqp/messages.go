package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a change to the expense collection.
type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseUpdated EventType = "expense.updated"
	EventExpenseDeleted EventType = "expense.deleted"
	EventImported       EventType = "expenses.imported"
	EventReset          EventType = "expenses.reset"
)

// ExpenseEvent is a lightweight change notification. It carries only the
// affected id and the collection version after the change; consumers that
// need the record read it from the API.
type ExpenseEvent struct {
	EventID   string    `json:"event_id"`
	Type      EventType `json:"type"`
	ExpenseID int64     `json:"expense_id,omitempty"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent creates an event with a fresh id. expenseID is zero for
// collection-wide events (import, reset).
func NewExpenseEvent(typ EventType, expenseID int64, version uint64) *ExpenseEvent {
	return &ExpenseEvent{
		EventID:   uuid.NewString(),
		Type:      typ,
		ExpenseID: expenseID,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
