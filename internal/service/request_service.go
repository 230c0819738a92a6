package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"backend/internal/apperr"
	"backend/internal/document"
	"backend/internal/llm"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/storage"
	"backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lifecycle events broadcast to websocket clients after a committed change.
const (
	EventRequestCreated   = "request.created"
	EventRequestUpdated   = "request.updated"
	EventRequestApproved  = "request.approved"
	EventRequestRejected  = "request.rejected"
	EventRequestWithdrawn = "request.withdrawn"
	EventPOGenerated      = "purchase_order.generated"
	EventReceiptSubmitted = "receipt.submitted"
)

// --- DTOs ---

type CreateRequestDTO struct {
	Title       string `form:"title" binding:"required,max=255"`
	Description string `form:"description"`
	Amount      string `form:"amount" binding:"required"` // Decimal string
}

// UpdateRequestDTO carries partial field changes; nil means "leave as is".
type UpdateRequestDTO struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Amount      *string `json:"amount"`
}

type ApprovalActionDTO struct {
	Comment string `json:"comment"`
}

type RequestFilter struct {
	Status string // pending, approved, rejected or empty for all
	Page   int
	Limit  int
}

// Upload is a file received from the HTTP layer, not yet persisted.
type Upload struct {
	Filename string
	Content  io.Reader
}

type RequestUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type ApprovalResponse struct {
	ID            string `json:"id"`
	RequestID     string `json:"request_id"`
	ApproverID    string `json:"approver_id"`
	ApproverName  string `json:"approver_name"`
	ApproverLevel int    `json:"approver_level"`
	Status        string `json:"status"`
	Comment       string `json:"comment"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type RequestResponse struct {
	ID                string                   `json:"id"`
	Title             string                   `json:"title"`
	Description       string                   `json:"description"`
	Amount            string                   `json:"amount"`
	Status            string                   `json:"status"`
	CreatedByID       string                   `json:"created_by"`
	CreatedByName     string                   `json:"created_by_name"`
	User              *RequestUser             `json:"user,omitempty"`
	Proforma          *string                  `json:"proforma"`
	PurchaseOrder     *string                  `json:"purchase_order"`
	Receipt           *string                  `json:"receipt"`
	DocumentMetadata  *model.ProformaMetadata  `json:"document_metadata"`
	ReceiptValidation *model.ReceiptValidation `json:"receipt_validation"`
	POGeneratedAt     *string                  `json:"po_generated_at"`
	Approvals         []ApprovalResponse       `json:"approvals"`
	CreatedAt         string                   `json:"created_at"`
	UpdatedAt         string                   `json:"updated_at"`
}

// --- Collaborator boundaries ---

// TextExtractor pulls plain text out of a stored document. Extraction is
// best-effort; callers degrade to empty text on error.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// EventPublisher pushes lifecycle events to connected clients.
type EventPublisher interface {
	Publish(event string, data interface{})
}

// --- Interface ---

type RequestService interface {
	CreateRequest(ctx context.Context, actor model.Actor, req CreateRequestDTO, proforma *Upload) (RequestResponse, error)
	GetRequest(ctx context.Context, actor model.Actor, id string) (RequestResponse, error)
	ListRequests(ctx context.Context, actor model.Actor, filter RequestFilter) ([]RequestResponse, int64, error)
	UpdateRequest(ctx context.Context, actor model.Actor, id string, req UpdateRequestDTO, proforma *Upload) (RequestResponse, error)
	ApproveRequest(ctx context.Context, actor model.Actor, id string, comment string) (RequestResponse, error)
	RejectRequest(ctx context.Context, actor model.Actor, id string, comment string) (RequestResponse, error)
	SubmitReceipt(ctx context.Context, actor model.Actor, id string, receipt Upload) (RequestResponse, error)
	WithdrawRequest(ctx context.Context, actor model.Actor, id string) error
}

// RequestServiceDeps bundles the collaborators of the approval workflow; the
// cmd wiring fills it once at startup.
type RequestServiceDeps struct {
	Requests  repository.RequestRepository
	Approvals repository.ApprovalRepository
	Users     repository.UserRepository
	Audit     repository.AuditRepository
	Tx        repository.TransactionManager

	Store     *storage.Local
	Extractor TextExtractor
	Enricher  llm.Enricher
	Events    EventPublisher

	MediaURL       string
	FinanceViewAll bool
	Logger         zerolog.Logger
	Now            func() time.Time
}

type requestService struct {
	requests  repository.RequestRepository
	approvals repository.ApprovalRepository
	users     repository.UserRepository
	audit     repository.AuditRepository
	tx        repository.TransactionManager

	store     *storage.Local
	extractor TextExtractor
	enricher  llm.Enricher
	events    EventPublisher

	mediaURL       string
	financeViewAll bool
	log            zerolog.Logger
	now            func() time.Time
}

func NewRequestService(deps RequestServiceDeps) RequestService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &requestService{
		requests:       deps.Requests,
		approvals:      deps.Approvals,
		users:          deps.Users,
		audit:          deps.Audit,
		tx:             deps.Tx,
		store:          deps.Store,
		extractor:      deps.Extractor,
		enricher:       deps.Enricher,
		events:         deps.Events,
		mediaURL:       strings.TrimSuffix(deps.MediaURL, "/"),
		financeViewAll: deps.FinanceViewAll,
		log:            deps.Logger.With().Str("component", "requests").Logger(),
		now:            deps.Now,
	}
}

// --- Implementation ---

func (s *requestService) CreateRequest(ctx context.Context, actor model.Actor, req CreateRequestDTO, proforma *Upload) (RequestResponse, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return RequestResponse{}, err
	}

	request := &model.PurchaseRequest{
		Title:       req.Title,
		Description: req.Description,
		Amount:      amount,
		Status:      model.StatusPending,
		CreatedByID: actor.ID,
	}

	// Store and process the proforma before opening the transaction, so a
	// slow OCR or model call never holds a row lock.
	if proforma != nil {
		rel, saveErr := s.store.Save(storage.DirProformas, proforma.Filename, proforma.Content)
		if saveErr != nil {
			return RequestResponse{}, fmt.Errorf("failed to store proforma: %w", saveErr)
		}
		request.ProformaPath = rel
		request.DocumentMetadata = s.extractMetadata(ctx, rel, req.Title, amount)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if upsertErr := s.users.Upsert(txCtx, actor.User()); upsertErr != nil {
			return fmt.Errorf("failed to upsert requester: %w", upsertErr)
		}
		if createErr := s.requests.Create(txCtx, request); createErr != nil {
			return fmt.Errorf("failed to create purchase request: %w", createErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"title":        req.Title,
			"amount":       amount.StringFixed(2),
			"has_proforma": proforma != nil,
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionCreateRequest,
			EntityID:   request.ID.String(),
			EntityName: req.Title,
			Details:    string(details),
		}
		if auditErr := s.audit.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		s.store.Remove(request.ProformaPath)
		return RequestResponse{}, err
	}

	resp, err := s.loadResponse(ctx, request.ID)
	if err != nil {
		return RequestResponse{}, err
	}
	s.publish(EventRequestCreated, resp)
	return resp, nil
}

func (s *requestService) GetRequest(ctx context.Context, actor model.Actor, id string) (RequestResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, apperr.Validation("invalid request id")
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return RequestResponse{}, notFoundOr(err, "purchase request")
	}
	// Roles without global visibility cannot probe other owners' requests;
	// reporting 404 instead of 403 keeps their existence private.
	if request.CreatedByID != actor.ID && !actor.Role.CanViewAllRequests(s.financeViewAll) {
		return RequestResponse{}, apperr.NotFound("purchase request not found")
	}
	return s.toResponse(request), nil
}

func (s *requestService) ListRequests(ctx context.Context, actor model.Actor, filter RequestFilter) ([]RequestResponse, int64, error) {
	params := pagination.Normalize(filter.Page, filter.Limit)

	var ownerID *uuid.UUID
	if !actor.Role.CanViewAllRequests(s.financeViewAll) {
		ownerID = &actor.ID
	}

	requests, total, err := s.requests.List(ctx, ownerID, filter.Status, params.Page, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchase requests: %w", err)
	}

	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, s.toResponse(&requests[i]))
	}
	return result, total, nil
}

func (s *requestService) UpdateRequest(ctx context.Context, actor model.Actor, id string, req UpdateRequestDTO, proforma *Upload) (RequestResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, apperr.Validation("invalid request id")
	}

	// Cheap precheck before paying for storage and OCR; re-verified under
	// the row lock below.
	current, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return RequestResponse{}, notFoundOr(err, "purchase request")
	}
	if current.CreatedByID != actor.ID {
		return RequestResponse{}, apperr.Forbidden("Only the request owner can edit this request.")
	}
	if current.Status != model.StatusPending {
		return RequestResponse{}, apperr.InvalidState("Only pending requests can be edited.")
	}

	var amount *decimal.Decimal
	if req.Amount != nil {
		parsed, parseErr := parseAmount(*req.Amount)
		if parseErr != nil {
			return RequestResponse{}, parseErr
		}
		amount = &parsed
	}

	// A replacement proforma re-runs the extraction pipeline with the
	// incoming title/amount as fallbacks.
	var newPath string
	var freshMeta *model.ProformaMetadata
	if proforma != nil {
		rel, saveErr := s.store.Save(storage.DirProformas, proforma.Filename, proforma.Content)
		if saveErr != nil {
			return RequestResponse{}, fmt.Errorf("failed to store proforma: %w", saveErr)
		}
		newPath = rel

		fallbackTitle := current.Title
		if req.Title != nil {
			fallbackTitle = *req.Title
		}
		fallbackAmount := current.Amount
		if amount != nil {
			fallbackAmount = *amount
		}
		freshMeta = s.extractMetadata(ctx, rel, fallbackTitle, fallbackAmount)
	}

	var oldPath string
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, findErr := s.requests.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return notFoundOr(findErr, "purchase request")
		}
		if request.CreatedByID != actor.ID {
			return apperr.Forbidden("Only the request owner can edit this request.")
		}
		if request.Status != model.StatusPending {
			return apperr.InvalidState("Only pending requests can be edited.")
		}

		changed := map[string]interface{}{}
		if req.Title != nil {
			request.Title = *req.Title
			changed["title"] = *req.Title
		}
		if req.Description != nil {
			request.Description = *req.Description
			changed["description"] = *req.Description
		}
		if amount != nil {
			request.Amount = *amount
			changed["amount"] = amount.StringFixed(2)
		}
		if newPath != "" {
			oldPath = request.ProformaPath
			request.ProformaPath = newPath
			request.DocumentMetadata = mergeMetadata(request.DocumentMetadata, freshMeta)
			changed["proforma"] = true
		}
		request.UpdatedByID = &actor.ID

		if saveErr := s.requests.Save(txCtx, request); saveErr != nil {
			return fmt.Errorf("failed to update purchase request: %w", saveErr)
		}

		details, _ := json.Marshal(changed)
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionUpdateRequest,
			EntityID:   request.ID.String(),
			EntityName: request.Title,
			Details:    string(details),
		}
		if auditErr := s.audit.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		s.store.Remove(newPath)
		return RequestResponse{}, err
	}
	if oldPath != "" && oldPath != newPath {
		s.store.Remove(oldPath)
	}

	resp, err := s.loadResponse(ctx, requestID)
	if err != nil {
		return RequestResponse{}, err
	}
	s.publish(EventRequestUpdated, resp)
	return resp, nil
}

func (s *requestService) ApproveRequest(ctx context.Context, actor model.Actor, id string, comment string) (RequestResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, apperr.Validation("invalid request id")
	}

	level, ok := actor.Role.ApproverLevel()
	if !ok {
		return RequestResponse{}, apperr.Forbidden("Only approvers can perform this action.")
	}

	var poPath, poNumber string
	var becameApproved bool
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// A retried attempt re-runs from the lock; drop whatever artifact
		// the failed attempt wrote.
		if poPath != "" {
			s.store.Remove(poPath)
			poPath = ""
		}
		becameApproved = false

		request, findErr := s.requests.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return notFoundOr(findErr, "purchase request")
		}
		if request.Status != model.StatusPending {
			return apperr.InvalidState("Only pending requests can be acted upon.")
		}
		if level == 2 {
			hasL1, checkErr := s.approvals.HasApprovedLevel(txCtx, requestID, 1)
			if checkErr != nil {
				return fmt.Errorf("failed to check level 1 approvals: %w", checkErr)
			}
			if !hasL1 {
				return apperr.PreconditionFailed("Level 1 approval required before level 2 approvers can act.")
			}
		}

		if upsertErr := s.users.Upsert(txCtx, actor.User()); upsertErr != nil {
			return fmt.Errorf("failed to upsert approver: %w", upsertErr)
		}
		approval := &model.Approval{
			RequestID:     requestID,
			ApproverID:    actor.ID,
			ApproverLevel: level,
			Status:        model.StatusApproved,
			Comment:       comment,
		}
		if upsertErr := s.approvals.Upsert(txCtx, approval); upsertErr != nil {
			return fmt.Errorf("failed to record approval: %w", upsertErr)
		}
		request.LastApprovedByID = &actor.ID

		levels, levelsErr := s.approvals.ApprovedLevels(txCtx, requestID)
		if levelsErr != nil {
			return fmt.Errorf("failed to read approved levels: %w", levelsErr)
		}
		if len(levels) >= model.RequiredApprovalLevels {
			now := s.now()
			po, content := document.GeneratePurchaseOrder(request, request.DocumentMetadata, now)
			rel, saveErr := s.store.Save(storage.DirPurchaseOrders, po.PONumber+".txt", strings.NewReader(content))
			if saveErr != nil {
				return fmt.Errorf("failed to store purchase order: %w", saveErr)
			}
			poPath = rel
			poNumber = po.PONumber

			request.Status = model.StatusApproved
			request.PurchaseOrderPath = rel
			if request.DocumentMetadata == nil {
				request.DocumentMetadata = &model.ProformaMetadata{}
			}
			request.DocumentMetadata.PurchaseOrder = &po
			request.POGeneratedAt = &now
			becameApproved = true

			poDetails, _ := json.Marshal(map[string]interface{}{
				"po_number": po.PONumber,
				"total":     po.Total.StringFixed(2),
				"currency":  po.Currency,
			})
			poAudit := &model.AuditLog{
				UserID:     &actor.ID,
				Action:     model.ActionGeneratePO,
				EntityID:   request.ID.String(),
				EntityName: po.PONumber,
				Details:    string(poDetails),
			}
			if auditErr := s.audit.Log(txCtx, poAudit); auditErr != nil {
				return fmt.Errorf("failed to write purchase order audit log: %w", auditErr)
			}
		}

		if saveErr := s.requests.Save(txCtx, request); saveErr != nil {
			return fmt.Errorf("failed to update purchase request: %w", saveErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"level":   level,
			"comment": comment,
			"status":  request.Status,
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionApproveRequest,
			EntityID:   request.ID.String(),
			EntityName: request.Title,
			Details:    string(details),
		}
		if auditErr := s.audit.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		s.store.Remove(poPath)
		return RequestResponse{}, err
	}

	resp, err := s.loadResponse(ctx, requestID)
	if err != nil {
		return RequestResponse{}, err
	}
	if becameApproved {
		s.publish(EventRequestApproved, resp)
		s.publish(EventPOGenerated, map[string]interface{}{
			"request_id": requestID.String(),
			"po_number":  poNumber,
		})
	} else {
		s.publish(EventRequestUpdated, resp)
	}
	return resp, nil
}

func (s *requestService) RejectRequest(ctx context.Context, actor model.Actor, id string, comment string) (RequestResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, apperr.Validation("invalid request id")
	}

	level, ok := actor.Role.ApproverLevel()
	if !ok {
		return RequestResponse{}, apperr.Forbidden("Only approvers can perform this action.")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, findErr := s.requests.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return notFoundOr(findErr, "purchase request")
		}
		// Either tier may reject a pending request outright; the level
		// ordering only gates approvals.
		if request.Status != model.StatusPending {
			return apperr.InvalidState("Only pending requests can be acted upon.")
		}

		if upsertErr := s.users.Upsert(txCtx, actor.User()); upsertErr != nil {
			return fmt.Errorf("failed to upsert approver: %w", upsertErr)
		}
		approval := &model.Approval{
			RequestID:     requestID,
			ApproverID:    actor.ID,
			ApproverLevel: level,
			Status:        model.StatusRejected,
			Comment:       comment,
		}
		if upsertErr := s.approvals.Upsert(txCtx, approval); upsertErr != nil {
			return fmt.Errorf("failed to record rejection: %w", upsertErr)
		}

		request.Status = model.StatusRejected
		if saveErr := s.requests.Save(txCtx, request); saveErr != nil {
			return fmt.Errorf("failed to update purchase request: %w", saveErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"level":   level,
			"comment": comment,
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionRejectRequest,
			EntityID:   request.ID.String(),
			EntityName: request.Title,
			Details:    string(details),
		}
		if auditErr := s.audit.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	resp, err := s.loadResponse(ctx, requestID)
	if err != nil {
		return RequestResponse{}, err
	}
	s.publish(EventRequestRejected, resp)
	return resp, nil
}

func (s *requestService) SubmitReceipt(ctx context.Context, actor model.Actor, id string, receipt Upload) (RequestResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, apperr.Validation("invalid request id")
	}

	// Cheap precheck before paying for storage and OCR; re-verified under
	// the row lock below.
	current, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return RequestResponse{}, notFoundOr(err, "purchase request")
	}
	if current.CreatedByID != actor.ID {
		return RequestResponse{}, apperr.Forbidden("Only the request owner can submit receipts.")
	}
	if current.Status != model.StatusApproved {
		return RequestResponse{}, apperr.InvalidState("Receipts can only be submitted for approved requests.")
	}
	if current.ReceiptPath != "" {
		return RequestResponse{}, apperr.Conflict("Receipt already submitted.")
	}

	rel, err := s.store.Save(storage.DirReceipts, receipt.Filename, receipt.Content)
	if err != nil {
		return RequestResponse{}, fmt.Errorf("failed to store receipt: %w", err)
	}
	text, err := s.extractor.Extract(ctx, s.store.Abs(rel))
	if err != nil {
		s.log.Warn().Err(err).Str("path", rel).Msg("receipt text extraction failed, validating against empty text")
		text = ""
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, findErr := s.requests.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return notFoundOr(findErr, "purchase request")
		}
		if request.CreatedByID != actor.ID {
			return apperr.Forbidden("Only the request owner can submit receipts.")
		}
		if request.Status != model.StatusApproved {
			return apperr.InvalidState("Receipts can only be submitted for approved requests.")
		}
		if request.ReceiptPath != "" {
			return apperr.Conflict("Receipt already submitted.")
		}

		validation := document.ValidateReceipt(request, text, s.now())
		request.ReceiptPath = rel
		request.ReceiptValidation = &validation
		if saveErr := s.requests.Save(txCtx, request); saveErr != nil {
			return fmt.Errorf("failed to update purchase request: %w", saveErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"is_valid":      validation.IsValid,
			"discrepancies": validation.Discrepancies,
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionSubmitReceipt,
			EntityID:   request.ID.String(),
			EntityName: request.Title,
			Details:    string(details),
		}
		if auditErr := s.audit.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		s.store.Remove(rel)
		return RequestResponse{}, err
	}

	resp, err := s.loadResponse(ctx, requestID)
	if err != nil {
		return RequestResponse{}, err
	}
	s.publish(EventReceiptSubmitted, resp)
	return resp, nil
}

func (s *requestService) WithdrawRequest(ctx context.Context, actor model.Actor, id string) error {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return apperr.Validation("invalid request id")
	}

	var orphaned []string
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		orphaned = orphaned[:0]

		request, findErr := s.requests.FindByIDForUpdate(txCtx, requestID)
		if findErr != nil {
			return notFoundOr(findErr, "purchase request")
		}
		if request.CreatedByID != actor.ID {
			return apperr.Forbidden("Only the request owner can withdraw this request.")
		}
		if request.Status != model.StatusPending {
			return apperr.InvalidState("Only pending requests can be withdrawn.")
		}

		if delErr := s.approvals.DeleteByRequest(txCtx, requestID); delErr != nil {
			return fmt.Errorf("failed to delete approvals: %w", delErr)
		}
		if delErr := s.requests.Delete(txCtx, requestID); delErr != nil {
			return fmt.Errorf("failed to delete purchase request: %w", delErr)
		}

		details, _ := json.Marshal(map[string]interface{}{"title": request.Title})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionWithdrawRequest,
			EntityID:   request.ID.String(),
			EntityName: request.Title,
			Details:    string(details),
		}
		if auditErr := s.audit.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		if request.ProformaPath != "" {
			orphaned = append(orphaned, request.ProformaPath)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, rel := range orphaned {
		s.store.Remove(rel)
	}
	s.publish(EventRequestWithdrawn, map[string]interface{}{"id": requestID.String()})
	return nil
}

// --- Helpers ---

// extractMetadata runs the document pipeline for a stored proforma: text
// extraction, the line parser, then best-effort model enrichment. It cannot
// fail; a broken extraction yields fallback metadata built from the request
// fields.
func (s *requestService) extractMetadata(ctx context.Context, rel, fallbackTitle string, fallbackAmount decimal.Decimal) *model.ProformaMetadata {
	text, err := s.extractor.Extract(ctx, s.store.Abs(rel))
	if err != nil {
		s.log.Warn().Err(err).Str("path", rel).Msg("proforma text extraction failed, using fallbacks")
		text = ""
	}

	meta := document.ParseProforma(text, fallbackTitle, fallbackAmount)
	if s.enricher != nil {
		enriched, enrichErr := s.enricher.Enrich(ctx, text)
		if enrichErr != nil {
			s.log.Warn().Err(enrichErr).Msg("metadata enrichment failed, keeping parsed metadata")
		}
		document.MergeEnrichment(meta, enriched)
	}
	return meta
}

// mergeMetadata folds a fresh extraction over existing metadata. Parsed
// fields always replace their predecessors; previously enriched keys survive
// unless re-enrichment overwrote them.
func mergeMetadata(existing, fresh *model.ProformaMetadata) *model.ProformaMetadata {
	if existing == nil {
		return fresh
	}
	merged := *fresh
	merged.PurchaseOrder = existing.PurchaseOrder
	if len(existing.Enriched) > 0 {
		enriched := make(map[string]interface{}, len(existing.Enriched)+len(fresh.Enriched))
		for k, v := range existing.Enriched {
			enriched[k] = v
		}
		for k, v := range fresh.Enriched {
			enriched[k] = v
		}
		merged.Enriched = enriched
	}
	return &merged
}

// parseAmount validates a money field: a decimal number with at most two
// fractional digits and at most twelve digits overall, matching the column.
func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, apperr.Validation("amount must be a decimal number")
	}
	if amount.Exponent() < -2 {
		return decimal.Decimal{}, apperr.Validation("amount cannot have more than two decimal places")
	}
	if amount.Abs().GreaterThanOrEqual(decimal.New(1, 10)) {
		return decimal.Decimal{}, apperr.Validation("amount is out of range")
	}
	return amount, nil
}

// notFoundOr maps a missing row to the not-found kind and wraps anything
// else as an internal failure.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func (s *requestService) loadResponse(ctx context.Context, id uuid.UUID) (RequestResponse, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return RequestResponse{}, fmt.Errorf("failed to reload purchase request: %w", err)
	}
	return s.toResponse(request), nil
}

func (s *requestService) publish(event string, data interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(event, data)
}

// fileURL turns a stored relative path into a media URL path. The HTTP layer
// resolves it against the serving origin.
func (s *requestService) fileURL(rel string) *string {
	if rel == "" {
		return nil
	}
	u := s.mediaURL + "/" + rel
	return &u
}

func (s *requestService) toResponse(req *model.PurchaseRequest) RequestResponse {
	resp := RequestResponse{
		ID:                req.ID.String(),
		Title:             req.Title,
		Description:       req.Description,
		Amount:            req.Amount.StringFixed(2),
		Status:            req.Status,
		CreatedByID:       req.CreatedByID.String(),
		Proforma:          s.fileURL(req.ProformaPath),
		PurchaseOrder:     s.fileURL(req.PurchaseOrderPath),
		Receipt:           s.fileURL(req.ReceiptPath),
		DocumentMetadata:  req.DocumentMetadata,
		ReceiptValidation: req.ReceiptValidation,
		Approvals:         make([]ApprovalResponse, 0, len(req.Approvals)),
		CreatedAt:         req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         req.UpdatedAt.Format(time.RFC3339),
	}

	if req.CreatedBy != nil {
		resp.CreatedByName = req.CreatedBy.Name
		resp.User = &RequestUser{
			ID:    req.CreatedBy.ID.String(),
			Email: req.CreatedBy.Email,
			Name:  req.CreatedBy.Name,
			Role:  req.CreatedBy.Role.String(),
		}
	}
	if req.POGeneratedAt != nil {
		v := req.POGeneratedAt.Format(time.RFC3339)
		resp.POGeneratedAt = &v
	}
	for _, a := range req.Approvals {
		resp.Approvals = append(resp.Approvals, toRequestApprovalResponse(a))
	}
	return resp
}

func toRequestApprovalResponse(a model.Approval) ApprovalResponse {
	resp := ApprovalResponse{
		ID:            a.ID.String(),
		RequestID:     a.RequestID.String(),
		ApproverID:    a.ApproverID.String(),
		ApproverLevel: a.ApproverLevel,
		Status:        a.Status,
		Comment:       a.Comment,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.Format(time.RFC3339),
	}
	if a.Approver != nil {
		resp.ApproverName = a.Approver.Name
	}
	return resp
}
