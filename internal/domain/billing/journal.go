package billing

import (
	"fmt"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
)

// JournalKind says why a ledger entry is posted
type JournalKind int

const (
	// JournalInitial books the full amount of a bill newly created on Multibank
	JournalInitial JournalKind = iota
	// JournalIncrease books a positive correction of an existing bill
	JournalIncrease
	// JournalDecrease books a negative correction of an existing bill
	JournalDecrease
)

// KindForDelta returns the journal kind for a non-zero correction
func KindForDelta(delta int64) JournalKind {
	if delta < 0 {
		return JournalDecrease
	}
	return JournalIncrease
}

// JournalCode holds the Jurnal transaction codes for one service family
type JournalCode struct {
	Booking    int    // initial booking and positive corrections
	Correction int    // negative corrections
	Label      string // service name used in descriptions
	Period     string // "semester" or "periode"
}

// Code returns the transaction code for kind
func (c JournalCode) Code(kind JournalKind) int {
	if kind == JournalDecrease {
		return c.Correction
	}
	return c.Booking
}

// Describe builds the ledger description for a bill
func (c JournalCode) Describe(semester int, identityNumber, billIssue string) string {
	return fmt.Sprintf("Tagihan %s %s %d untuk %s %s", c.Label, c.Period, semester, identityNumber, billIssue)
}

// journalCodes maps service type id to its Jurnal transaction codes
var journalCodes = map[int64]JournalCode{
	1: {Booking: 1, Correction: 45, Label: "UKT", Period: "semester"},
	2: {Booking: 6, Correction: 52, Label: "SPP Labschool", Period: "periode"},
	3: {Booking: 46, Correction: 53, Label: "TTKA Ceria", Period: "periode"},
	4: {Booking: 47, Correction: 54, Label: "Pkh, SD PGSD, dll", Period: "periode"},
}

// JournalCodeFor returns the codes for a service type.
// Unknown service types post under the UKT codes.
func JournalCodeFor(serviceTypeID int64) JournalCode {
	if c, ok := journalCodes[serviceTypeID]; ok {
		return c
	}
	return journalCodes[PrimaryServiceTypeID]
}

// JournalEntry is the payload posted to the Jurnal platform
type JournalEntry struct {
	Date            time.Time
	TransactionCode int
	VoucherNumber   string
	Amount          int64
	Description     string
	PIC             string
	UnitCode        string
}

// NewJournalEntry builds the entry for a bill. amount is the signed delta (or full amount
// for an initial booking); the entry always carries its magnitude, the sign lives in the code.
func NewJournalEntry(bill *Bill, kind JournalKind, amount int64, pic Unit, at time.Time) (JournalEntry, error) {
	if amount == 0 {
		return JournalEntry{}, shared.Validation("Journal amount cannot be zero for bill %s", bill.BillNumber)
	}
	if amount < 0 {
		amount = -amount
	}
	codes := JournalCodeFor(bill.ServiceTypeID)
	return JournalEntry{
		Date:            at,
		TransactionCode: codes.Code(kind),
		VoucherNumber:   bill.VoucherNumber(),
		Amount:          amount,
		Description:     codes.Describe(bill.Semester, bill.IdentityNumber, bill.BillIssue),
		PIC:             pic.Name,
		UnitCode:        pic.Code,
	}, nil
}

// JournalReference records a posted ledger entry tied to a bill
type JournalReference struct {
	shared.BaseEntity
	JournalID       int64  `json:"journal_id"`
	Description     string `json:"description"`
	Amount          int64  `json:"amount"`
	TransactionCode int    `json:"transaction_code"`
	BillNumber      string `json:"bill_number"`
}

// NewJournalReference records the id Jurnal returned for entry
func NewJournalReference(billNumber string, journalID int64, entry JournalEntry) *JournalReference {
	return &JournalReference{
		BaseEntity:      shared.NewBaseEntity(),
		JournalID:       journalID,
		Description:     entry.Description,
		Amount:          entry.Amount,
		TransactionCode: entry.TransactionCode,
		BillNumber:      billNumber,
	}
}
