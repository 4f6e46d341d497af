// Package billing provides domain models for tuition and service bills that are
// reconciled against the Multibank payment platform and posted to the Jurnal ledger.
//
// Key Aggregates:
//   - Bill: one billable obligation, keyed by its bill number
//   - JournalReference: a posted ledger entry tied to a bill
//
// Value Objects:
//   - FlagStatus: Multibank publication status (on hold, active, paid)
//   - RemoteBillState: what Multibank knows about a bill (found or missing)
//   - JournalCode: ledger transaction codes per service type
//
// The package also declares the ports through which the application layer reaches
// storage (BillRepository, UnitRepository) and the partner platforms
// (BankGateway, LedgerGateway, FacultyDirectory, TokenSource).
package billing
