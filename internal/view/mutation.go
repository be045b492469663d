package view

import (
	"errors"
	"fmt"

	"notedb/internal/domain"
)

// MutationState is the lifecycle of an optimistic field change.
type MutationState uint8

const (
	// Applied: local state already shows the change; the store has not answered.
	Applied MutationState = iota
	// Confirmed: the store accepted the change.
	Confirmed
	// RolledBack: the store rejected the change and the row set was reloaded.
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Applied:
		return "applied"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("MutationState(%d)", uint8(s))
}

func (s MutationState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrInvalidTransition is returned when a resolved mutation is resolved again.
var ErrInvalidTransition = errors.New("invalid mutation state transition")

// PendingMutation tracks one optimistic write of a single field.
type PendingMutation struct {
	RowID    string            `json:"rowId"`
	ColumnID string            `json:"columnId"`
	Previous domain.FieldValue `json:"previous"`
	Next     domain.FieldValue `json:"next"`
	State    MutationState     `json:"state"`
}

func newPendingMutation(rowID, columnID string, prev, next domain.FieldValue) *PendingMutation {
	return &PendingMutation{RowID: rowID, ColumnID: columnID, Previous: prev.Clone(), Next: next.Clone(), State: Applied}
}

// Confirm moves Applied → Confirmed.
func (m *PendingMutation) Confirm() error {
	if m.State != Applied {
		return fmt.Errorf("confirm from %s: %w", m.State, ErrInvalidTransition)
	}
	m.State = Confirmed
	return nil
}

// RollBack moves Applied → RolledBack.
func (m *PendingMutation) RollBack() error {
	if m.State != Applied {
		return fmt.Errorf("roll back from %s: %w", m.State, ErrInvalidTransition)
	}
	m.State = RolledBack
	return nil
}

// Resolved reports whether the store has answered.
func (m *PendingMutation) Resolved() bool { return m.State != Applied }
