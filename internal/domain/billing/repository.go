package billing

import (
	"context"
)

// BillRepository defines the interface for bill persistence
type BillRepository interface {
	// FindByNumber finds a bill by its bill number
	FindByNumber(ctx context.Context, billNumber string) (*Bill, error)

	// FindByNumbers returns the bills that exist among billNumbers
	FindByNumbers(ctx context.Context, billNumbers []string) ([]*Bill, error)

	// FindUnconfirmed returns unconfirmed bills of the primary service type matching criteria
	FindUnconfirmed(ctx context.Context, criteria BillCriteria) ([]*Bill, error)

	// List returns one page of bills matching filter, newest first
	List(ctx context.Context, filter BillListFilter, page, pageSize int) (*BillListResult, error)

	// Create inserts a bill. Returns a CONFLICT error when the bill number is taken.
	Create(ctx context.Context, bill *Bill) error

	// Save updates the mutable fields of a bill
	Save(ctx context.Context, bill *Bill) error

	// SavePendingJournal stores the bill's pending journal while the bill is
	// unconfirmed. Returns a CONFLICT error once the bill is confirmed.
	SavePendingJournal(ctx context.Context, bill *Bill) error

	// SaveConfirmation persists a successful confirmation: the bill's flag and
	// confirmed state plus the journal reference (nil when nothing was posted),
	// in one transaction that also clears the pending journal. It only applies
	// while the stored bill is still unconfirmed and returns a CONFLICT error otherwise.
	SaveConfirmation(ctx context.Context, bill *Bill, ref *JournalReference) error

	// Delete removes a bill and its journal references
	Delete(ctx context.Context, billNumber string) error
}

// JournalReferenceRepository reads posted journal references
type JournalReferenceRepository interface {
	// FindByBillNumber lists the references of a bill, oldest first
	FindByBillNumber(ctx context.Context, billNumber string) ([]*JournalReference, error)
}

// UnitRepository looks up units in the local table
type UnitRepository interface {
	// FindByCode finds a unit by code
	FindByCode(ctx context.Context, code string) (*Unit, error)

	// FindByName finds a unit by exact name
	FindByName(ctx context.Context, name string) (*Unit, error)
}
