package handler

import (
	"context"
	"errors"
	"fmt"
	"io"

	appbilling "github.com/UnFik/api-saku-tagihan/internal/application/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BillManager covers bill maintenance
type BillManager interface {
	List(ctx context.Context, q appbilling.ListBillsQuery) (*appbilling.BillList, error)
	Get(ctx context.Context, billNumber string) (*appbilling.BillDetail, error)
	Create(ctx context.Context, cmd appbilling.CreateBillCommand) (*billing.Bill, error)
	Edit(ctx context.Context, billNumber string, cmd appbilling.EditBillCommand) (*billing.Bill, error)
	Delete(ctx context.Context, billNumber string, creds appbilling.Credentials) error
	PublishMany(ctx context.Context, billNumbers []string) (*appbilling.PublishResult, error)
	PaymentMany(ctx context.Context, billNumbers []string) (*appbilling.PaymentResult, error)
}

// BulkConfirmer confirms or creates several bills at once
type BulkConfirmer interface {
	CreateMany(ctx context.Context, createdBy string, cmds []appbilling.CreateBillCommand) (*appbilling.CreateManyResult, error)
	ConfirmMany(ctx context.Context, billNumbers []string, creds appbilling.Credentials) (*appbilling.ConfirmManyResult, error)
	ConfirmAll(ctx context.Context, createdBy string, filter billing.ConfirmAllFilter, creds appbilling.Credentials) (*appbilling.BulkResult, error)
}

// BillHandler handles bill endpoints
type BillHandler struct {
	BaseHandler
	bills     BillManager
	confirmer appbilling.Confirmer
	bulk      BulkConfirmer
}

// NewBillHandler creates a new BillHandler
func NewBillHandler(bills BillManager, confirmer appbilling.Confirmer, bulk BulkConfirmer) *BillHandler {
	return &BillHandler{
		bills:     bills,
		confirmer: confirmer,
		bulk:      bulk,
	}
}

// RegisterRoutes mounts the bill endpoints on rg
func (h *BillHandler) RegisterRoutes(rg *gin.RouterGroup) {
	bills := rg.Group("/bills")
	bills.GET("", h.List)
	bills.POST("", h.Create)
	bills.POST("/bulk", h.CreateMany)
	bills.POST("/confirm", h.Confirm)
	bills.POST("/confirm-many", h.ConfirmMany)
	bills.POST("/confirm-all", h.ConfirmAll)
	bills.POST("/publish", h.Publish)
	bills.POST("/payment", h.Payment)
	bills.GET("/:billNumber", h.Get)
	bills.PUT("/:billNumber", h.Edit)
	bills.DELETE("/:billNumber", h.Delete)
}

// List returns bills newest first with pagination meta
func (h *BillHandler) List(c *gin.Context) {
	var q appbilling.ListBillsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	list, err := h.bills.List(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, list.Items, list.TotalCount, list.Page, list.PageSize)
}

// Get returns a bill with its journal references
func (h *BillHandler) Get(c *gin.Context) {
	detail, err := h.bills.Get(c.Request.Context(), c.Param("billNumber"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, detail)
}

// Create registers a new bill
func (h *BillHandler) Create(c *gin.Context) {
	var cmd appbilling.CreateBillCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	bill, err := h.bills.Create(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, bill)
}

// CreateMany queues the creation of every row and answers 202 with the tracker id
func (h *BillHandler) CreateMany(c *gin.Context) {
	var req CreateManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.bulk.CreateMany(c.Request.Context(), createdBy(c), req.Bills)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, CreateManyResponse{
		QueueID:   result.QueueID,
		TotalData: result.TotalData,
		Message:   fmt.Sprintf("Memulai proses pembuatan %d tagihan di background", result.TotalData),
	})
}

// Edit changes amount, due date or flag of a bill
func (h *BillHandler) Edit(c *gin.Context) {
	var cmd appbilling.EditBillCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	bill, err := h.bills.Edit(c.Request.Context(), c.Param("billNumber"), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// Delete removes a bill locally and on Multibank
func (h *BillHandler) Delete(c *gin.Context) {
	billNumber := c.Param("billNumber")
	if err := h.bills.Delete(c.Request.Context(), billNumber, credentials(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, DeleteBillResponse{BillNumber: billNumber, Deleted: true})
}

// Confirm reconciles one bill synchronously
func (h *BillHandler) Confirm(c *gin.Context) {
	var req ConfirmBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.confirmer.Confirm(c.Request.Context(), appbilling.ConfirmCommand{
		BillNumber: req.BillNumber,
		Amount:     req.Amount,
		DueDate:    req.DueDate,
	}, credentials(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ConfirmMany reconciles the named bills one after another
func (h *BillHandler) ConfirmMany(c *gin.Context) {
	var req BillNumbersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.bulk.ConfirmMany(c.Request.Context(), req.BillNumbers, credentials(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ConfirmAll queues every matching unconfirmed bill and answers 202 with the
// tracker id. Nothing matching is a 200 with empty lists.
func (h *BillHandler) ConfirmAll(c *gin.Context) {
	var req ConfirmAllRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.bulk.ConfirmAll(c.Request.Context(), createdBy(c), req.filter(), credentials(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !result.Queued {
		h.Success(c, ConfirmAllEmptyResponse{
			Confirmed: []string{},
			Failed:    []string{},
			Filters:   result.Filters,
		})
		return
	}
	h.Accepted(c, ConfirmAllQueuedResponse{
		QueueID:   result.QueueID,
		TotalData: result.TotalData,
		Filters:   result.Filters,
	})
}

// Publish moves draft bills to active
func (h *BillHandler) Publish(c *gin.Context) {
	var req BillNumbersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.bills.PublishMany(c.Request.Context(), req.BillNumbers)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Payment marks confirmed active bills as paid
func (h *BillHandler) Payment(c *gin.Context) {
	var req BillNumbersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.bills.PaymentMany(c.Request.Context(), req.BillNumbers)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
