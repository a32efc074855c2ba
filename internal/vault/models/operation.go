package models

// OperationKind identifies which cash-moving operation the reconciler is
// committing. Each kind fixes the direction notes move and whether an
// account balance participates.
type OperationKind string

const (
	// KindDispense hands notes to a cardholder and debits their account.
	KindDispense OperationKind = "dispense"
	// KindRefill loads technician-supplied notes into the cassette.
	KindRefill OperationKind = "refill"
	// KindCollect removes notes from the cassette for bank transport.
	KindCollect OperationKind = "collect"
)

// Outbound reports whether the kind removes notes from the cassette.
// Outbound kinds are the ones the validator stock-checks; a refill adds
// notes that are not in the cassette yet, so stock cannot constrain it.
func (k OperationKind) Outbound() bool {
	return k == KindDispense || k == KindCollect
}

// Valid reports whether k is one of the defined kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case KindDispense, KindRefill, KindCollect:
		return true
	}
	return false
}

// Outcome is the terminal state of a reconciler commit attempt.
//
// State machine: an operation starts Validating; a validation failure ends it
// Rejected with nothing mutated or persisted. A valid operation moves to
// Committing; if the store transaction fails it ends RolledBack with live
// state untouched, otherwise Committed.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeRolledBack Outcome = "rolled_back"
)
