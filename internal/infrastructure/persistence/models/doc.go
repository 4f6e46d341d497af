// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel shared by every table keyed by uuid
// - bill.go: bills
// - journal.go: ref_journals, the journal ids Jurnal returned for a bill
// - unit.go: units (study programs / faculties)
// - queue_tracker.go: queue_trackers for bulk operations
package models
