package handler

import (
	"time"

	appbilling "github.com/UnFik/api-saku-tagihan/internal/application/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/google/uuid"
)

// ConfirmBillRequest asks to reconcile one bill with Multibank
type ConfirmBillRequest struct {
	BillNumber string     `json:"bill_number" binding:"required,max=64"`
	Amount     *int64     `json:"amount" binding:"omitempty,gte=0"`
	DueDate    *time.Time `json:"due_date"`
}

// BillNumbersRequest names the bills of a multi-bill operation
type BillNumbersRequest struct {
	BillNumbers []string `json:"bill_numbers" binding:"required,min=1,dive,required,max=64"`
}

// CreateManyRequest carries the rows of a bulk creation. Rows are validated
// one by one in the background.
type CreateManyRequest struct {
	Bills []appbilling.CreateBillCommand `json:"bills" binding:"required,min=1"`
}

// CreateManyResponse is returned once a bulk creation is queued
type CreateManyResponse struct {
	QueueID   uuid.UUID `json:"queue_id"`
	TotalData int       `json:"total_data"`
	Message   string    `json:"message"`
}

// ConfirmAllRequest filters the bills of a bulk confirmation. An empty body selects
// every unconfirmed primary-service bill.
type ConfirmAllRequest struct {
	Semester    string `json:"semester" binding:"omitempty,numeric"`
	BillIssueID string `json:"bill_issue_id" binding:"omitempty,numeric"`
	Major       string `json:"major" binding:"omitempty,max=255"`
	Operator    string `json:"operator" binding:"omitempty,oneof=and or"`
}

func (r ConfirmAllRequest) filter() billing.ConfirmAllFilter {
	return billing.ConfirmAllFilter{
		Semester:    r.Semester,
		BillIssueID: r.BillIssueID,
		Major:       r.Major,
		Operator:    billing.Operator(r.Operator),
	}
}

// ConfirmAllQueuedResponse is returned once a bulk confirmation is queued
type ConfirmAllQueuedResponse struct {
	QueueID   uuid.UUID                `json:"queue_id"`
	TotalData int                      `json:"total_data"`
	Filters   billing.ConfirmAllFilter `json:"filters"`
}

// ConfirmAllEmptyResponse is returned when no bill matched the filter
type ConfirmAllEmptyResponse struct {
	Confirmed []string                 `json:"confirmed"`
	Failed    []string                 `json:"failed"`
	Filters   billing.ConfirmAllFilter `json:"filters"`
}

// DeleteBillResponse acknowledges a deleted bill
type DeleteBillResponse struct {
	BillNumber string `json:"bill_number"`
	Deleted    bool   `json:"deleted"`
}
