package bulk

import (
	"fmt"
	"strings"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
)

// QueueStatus represents the status of a bulk operation
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "PENDING"
	QueueStatusProcessing QueueStatus = "PROCESSING"
	QueueStatusCompleted  QueueStatus = "COMPLETED"
	QueueStatusFailed     QueueStatus = "FAILED"
)

// IsValid checks if the status is valid
func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// rank orders statuses so transitions can be checked for monotonicity
func (s QueueStatus) rank() int {
	switch s {
	case QueueStatusPending:
		return 0
	case QueueStatusProcessing:
		return 1
	case QueueStatusCompleted, QueueStatusFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle forward-only
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// QueueTracker tracks the progress of one bulk operation.
// Counters only ever grow; status only ever moves forward.
type QueueTracker struct {
	shared.BaseEntity
	CreatedBy    string      `json:"created_by"`
	TotalData    int         `json:"total_data"`
	SuccessCount int         `json:"success_count"`
	FailedCount  int         `json:"failed_count"`
	Status       QueueStatus `json:"status"`
	Description  string      `json:"description"`
	Semester     *string     `json:"semester,omitempty"`
	BillIssue    *string     `json:"bill_issue,omitempty"`
	Major        *string     `json:"major,omitempty"`
	StartDate    time.Time   `json:"start_date"`
	EndDate      *time.Time  `json:"end_date,omitempty"`
}

// TrackerScope records the filters a bulk operation was started with
type TrackerScope struct {
	Semester  string
	BillIssue string
	Major     string
}

// Describe builds the human readable description shown in the tracker listing
func (s TrackerScope) Describe() string {
	var b strings.Builder
	b.WriteString("Konfirmasi tagihan massal")
	if s.Semester != "" {
		b.WriteString(" semester " + s.Semester)
	}
	if s.Major != "" {
		b.WriteString(" jurusan " + s.Major)
	}
	if s.BillIssue != "" {
		b.WriteString(" bill issue " + s.BillIssue)
	}
	return b.String()
}

// NewQueueTracker creates a tracker in PENDING state
func NewQueueTracker(createdBy string, totalData int, scope TrackerScope) (*QueueTracker, error) {
	if strings.TrimSpace(createdBy) == "" {
		return nil, shared.Validation("Creator cannot be empty")
	}
	if totalData <= 0 {
		return nil, shared.Validation("Total data must be positive, got %d", totalData)
	}

	now := time.Now()
	return &QueueTracker{
		BaseEntity:  shared.NewBaseEntity(),
		CreatedBy:   createdBy,
		TotalData:   totalData,
		Status:      QueueStatusPending,
		Description: scope.Describe(),
		Semester:    optional(scope.Semester),
		BillIssue:   optional(scope.BillIssue),
		Major:       optional(scope.Major),
		StartDate:   now,
	}, nil
}

// NewCreationTracker creates a PENDING tracker for a bulk bill creation
func NewCreationTracker(createdBy string, totalData int) (*QueueTracker, error) {
	t, err := NewQueueTracker(createdBy, totalData, TrackerScope{})
	if err != nil {
		return nil, err
	}
	t.Description = fmt.Sprintf("Pembuatan tagihan massal sejumlah %d data", totalData)
	return t, nil
}

// StartProcessing moves the tracker to PROCESSING
func (t *QueueTracker) StartProcessing() error {
	if !t.Status.CanTransitionTo(QueueStatusProcessing) {
		return shared.InvalidState("Cannot start processing from state: %s", t.Status)
	}
	t.Status = QueueStatusProcessing
	t.Touch()
	return nil
}

// Record adds resolved units to the counters
func (t *QueueTracker) Record(success, failed int) error {
	if success < 0 || failed < 0 {
		return shared.Validation("Counter deltas cannot be negative")
	}
	if t.Status.IsTerminal() {
		return shared.InvalidState("Cannot record progress on terminal tracker: %s", t.Status)
	}
	if t.Resolved()+success+failed > t.TotalData {
		return shared.InvalidState("Recorded units would exceed total %d", t.TotalData)
	}
	t.SuccessCount += success
	t.FailedCount += failed
	t.Touch()
	return nil
}

// Resolved returns the number of units that reached an outcome
func (t *QueueTracker) Resolved() int {
	return t.SuccessCount + t.FailedCount
}

// IsDrained reports whether every submitted unit has an outcome
func (t *QueueTracker) IsDrained() bool {
	return t.Resolved() >= t.TotalData
}

// OutcomeStatus returns the terminal status the counters call for
func (t *QueueTracker) OutcomeStatus() QueueStatus {
	if t.FailedCount > 0 {
		return QueueStatusFailed
	}
	return QueueStatusCompleted
}

// Finalize moves the tracker to a terminal state and stamps the end date.
// reason, if set, replaces the description.
func (t *QueueTracker) Finalize(status QueueStatus, reason string) error {
	if !status.IsTerminal() {
		return shared.Validation("Finalize requires a terminal status, got %s", status)
	}
	if !t.Status.CanTransitionTo(status) {
		return shared.InvalidState("Cannot finalize from state: %s", t.Status)
	}
	now := time.Now()
	t.Status = status
	t.EndDate = &now
	if reason != "" {
		t.Description = reason
	}
	t.UpdatedAt = now
	return nil
}

// FailureSummary describes a batch that ended with failures
func FailureSummary(base string, failed, total int) string {
	return fmt.Sprintf("%s: %d dari %d tagihan gagal diproses", base, failed, total)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
