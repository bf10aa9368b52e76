package businessflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/samber/lo"
)

// AuditFlow reads the audit trail for administrators
type AuditFlow interface {
	ListAuditLogs(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error)
}

// AuditFlowImpl implements AuditFlow on the audit log repository
type AuditFlowImpl struct {
	auditRepo   repository.AuditLogRepository
	paymentRepo repository.SplitOrderPaymentRepository
	logger      *slog.Logger
}

func NewAuditFlow(auditRepo repository.AuditLogRepository, paymentRepo repository.SplitOrderPaymentRepository, logger *slog.Logger) AuditFlow {
	return &AuditFlowImpl{
		auditRepo:   auditRepo,
		paymentRepo: paymentRepo,
		logger:      logger,
	}
}

// ListAuditLogs returns one page of audit entries, newest first.
// A single criterion uses its dedicated query; combined criteria go through the generic filter.
func (f *AuditFlowImpl) ListAuditLogs(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = utils.DefaultPageSize
	}
	if pageSize > utils.MaxPageSize {
		pageSize = utils.MaxPageSize
	}
	limit, offset := pageSize, (page-1)*pageSize

	filter := models.AuditLogFilter{Action: req.Action}
	if req.Failed {
		filter.Success = utils.ToPtr(false)
	}
	switch {
	case req.SplitPaymentID != nil:
		payment, err := f.paymentRepo.ByUUID(ctx, *req.SplitPaymentID)
		if err != nil {
			return nil, NewBusinessError("AUDIT_LOG_LIST_FAILED", "Failed to lookup split payment", err)
		}
		if payment == nil {
			return nil, NewBusinessError("SPLIT_PAYMENT_NOT_FOUND", "Split payment not found",
				fmt.Errorf("%w: %s", ErrSplitPaymentNotFound, *req.SplitPaymentID))
		}
		filter.EntityType = utils.ToPtr(models.AuditEntitySplitPayment)
		filter.EntityID = &payment.ID
	case req.EntityType != nil && req.EntityID != nil:
		filter.EntityType = req.EntityType
		filter.EntityID = req.EntityID
	}

	entity := filter.EntityType != nil
	action := filter.Action != nil

	var logs []*models.AuditLog
	var err error
	switch {
	case entity && !action && !req.Failed:
		logs, err = f.auditRepo.ListByEntity(ctx, *filter.EntityType, *filter.EntityID, limit, offset)
	case !entity && action && !req.Failed:
		logs, err = f.auditRepo.ListByAction(ctx, *filter.Action, limit, offset)
	case !entity && !action && req.Failed:
		logs, err = f.auditRepo.ListFailedActions(ctx, limit, offset)
	default:
		logs, err = f.auditRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	}
	if err != nil {
		return nil, NewBusinessError("AUDIT_LOG_LIST_FAILED", "Failed to list audit logs", err)
	}

	return &dto.ListAuditLogsResponse{
		Logs:     lo.Map(logs, func(a *models.AuditLog, _ int) dto.AuditLogDTO { return ToAuditLogDTO(a) }),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// ToAuditLogDTO converts an audit entry to its API view
func ToAuditLogDTO(a *models.AuditLog) dto.AuditLogDTO {
	return dto.AuditLogDTO{
		ID:           a.ID,
		Action:       a.Action,
		EntityType:   a.EntityType,
		EntityID:     a.EntityID,
		Description:  a.Description,
		RequestID:    a.RequestID,
		Success:      !a.IsFailed(),
		ErrorMessage: a.ErrorMessage,
		CreatedAt:    a.CreatedAt.UTC(),
	}
}
