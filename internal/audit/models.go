package audit

import (
	"time"

	"cashpoint/pkg/money"
)

// TransactionType labels a cardholder-facing transaction record.
type TransactionType string

const (
	TypeWithdrawal       TransactionType = "WITHDRAWAL"
	TypeDeposit          TransactionType = "DEPOSIT"
	TypeTransferSent     TransactionType = "TRANSFER_SENT"
	TypeTransferReceived TransactionType = "TRANSFER_RECEIVED"
	TypePINChange        TransactionType = "PIN_CHANGE"
	TypeAccountCreated   TransactionType = "ACCOUNT_CREATED"
)

// TransactionRecord is one append-only row of an account's transaction
// history. For withdrawals NoteBreakdown carries the dispensed note mix
// ("1x$20, 1x$10, 1x$5"); for all other types it is empty.
//
// Records are written in the same store transaction as the balance change
// they describe, so the history can never show a movement that did not
// happen, or miss one that did.
type TransactionRecord struct {
	ID              int64
	AccountNumber   string
	AccountHolder   string
	Type            TransactionType
	Amount          money.Amount
	PreviousBalance money.Amount
	NewBalance      money.Amount
	NoteBreakdown   string
	CreatedAt       time.Time
}

// ActivityType labels a technician maintenance record.
type ActivityType string

const (
	ActivityCashRefill     ActivityType = "CASH_REFILL"
	ActivityCashCollection ActivityType = "CASH_COLLECTION"
	ActivityPaperRefill    ActivityType = "PAPER_REFILL"
	ActivityInkRefill      ActivityType = "INK_REFILL"
)

// ActivityRecord is one append-only row of the technician activity log.
// Amount, PreviousValue, and NewValue are cents for cash activities and raw
// unit counts for paper and ink refills; Description carries the rendered
// detail either way (note breakdowns for cash, counts for supplies).
type ActivityRecord struct {
	ID            int64
	Type          ActivityType
	Amount        int64
	Description   string
	PreviousValue int64
	NewValue      int64
	CreatedAt     time.Time
}
