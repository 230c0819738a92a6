package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backend/internal/apperr"
	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type RequestHandler struct {
	requestService service.RequestService
	exportService  service.ExportService
	log            zerolog.Logger
}

func NewRequestHandler(requestService service.RequestService, exportService service.ExportService, log zerolog.Logger) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		exportService:  exportService,
		log:            log,
	}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	requests.Use(middleware.Authenticate())
	{
		requests.POST("", h.CreateRequest)
		requests.GET("", h.ListRequests)
		requests.GET("/export", h.ExportRequests)
		requests.GET("/:id", h.GetRequest)
		requests.PUT("/:id", h.UpdateRequest)
		requests.PATCH("/:id", h.UpdateRequest)
		requests.DELETE("/:id", h.WithdrawRequest)
		requests.PATCH("/:id/approve", h.ApproveRequest)
		requests.PATCH("/:id/reject", h.RejectRequest)
		requests.POST("/:id/submit-receipt", h.SubmitReceipt)
	}
}

// CreateRequest creates a pending purchase request, optionally processing an
// attached proforma document
// @Summary      Create purchase request
// @Description  Creates a pending purchase request; an attached proforma is parsed into document metadata
// @Tags         requests
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        title        formData  string  true   "Request title"
// @Param        description  formData  string  false  "Request description"
// @Param        amount       formData  string  true   "Decimal amount, max two decimal places"
// @Param        proforma     formData  file    false  "Proforma document (pdf, image or text)"
// @Success      201  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.CreateRequestDTO
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	upload, closeUpload, err := formUpload(c, "proforma")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	if closeUpload != nil {
		defer closeUpload()
	}

	result, err := h.requestService.CreateRequest(c.Request.Context(), actor, req, upload)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.absolutize(c, &result)
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRequests returns purchase requests visible to the caller
// @Summary      List purchase requests
// @Description  Staff see their own requests; approvers and finance see all. Optionally filtered by status
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status (pending, approved, rejected)"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.ListResponse{data=[]service.RequestResponse}
// @Failure      500     {object}  response.Response
// @Router       /api/requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	params := pagination.Parse(c)
	filter := service.RequestFilter{
		Status: c.Query("status"),
		Page:   params.Page,
		Limit:  params.Limit,
	}

	requests, total, err := h.requestService.ListRequests(c.Request.Context(), actor, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	for i := range requests {
		h.absolutize(c, &requests[i])
	}

	c.JSON(http.StatusOK, response.List(http.StatusOK, requests, total, params.Page, params.Limit))
}

// GetRequest returns a single purchase request with its approval chain
// @Summary      Get purchase request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	result, err := h.requestService.GetRequest(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.absolutize(c, &result)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// UpdateRequest edits a pending request's fields, optionally replacing the
// proforma document
// @Summary      Update purchase request
// @Description  Owner-only while pending. Accepts JSON for field changes or multipart form data to also replace the proforma
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Request ID"
// @Param        payload  body      service.UpdateRequestDTO  true  "Fields to change"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/requests/{id} [patch]
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.UpdateRequestDTO
	var upload *service.Upload
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if v, fieldSet := c.GetPostForm("title"); fieldSet {
			req.Title = &v
		}
		if v, fieldSet := c.GetPostForm("description"); fieldSet {
			req.Description = &v
		}
		if v, fieldSet := c.GetPostForm("amount"); fieldSet {
			req.Amount = &v
		}

		var closeUpload func()
		var err error
		upload, closeUpload, err = formUpload(c, "proforma")
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
			return
		}
		if closeUpload != nil {
			defer closeUpload()
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.UpdateRequest(c.Request.Context(), actor, c.Param("id"), req, upload)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.absolutize(c, &result)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// WithdrawRequest deletes the caller's own pending request
// @Summary      Withdraw purchase request
// @Description  Owner-only while pending; removes the request, its approvals and stored documents
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/requests/{id} [delete]
func (h *RequestHandler) WithdrawRequest(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	if err := h.requestService.WithdrawRequest(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Purchase request withdrawn"))
}

// ApproveRequest records the caller's approval at their tier
// @Summary      Approve purchase request
// @Description  Level 1 and level 2 approvers approve in order; full approval generates the purchase order
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true   "Request ID"
// @Param        payload  body      service.ApprovalActionDTO  false  "Optional comment"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/requests/{id}/approve [patch]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.ApprovalActionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body — comment is optional
		req.Comment = ""
	}

	result, err := h.requestService.ApproveRequest(c.Request.Context(), actor, c.Param("id"), req.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.absolutize(c, &result)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest records the caller's rejection and closes the request
// @Summary      Reject purchase request
// @Description  Either approver tier may reject a pending request outright
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true   "Request ID"
// @Param        payload  body      service.ApprovalActionDTO  false  "Optional comment"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/requests/{id}/reject [patch]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.ApprovalActionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body — comment is optional
		req.Comment = ""
	}

	result, err := h.requestService.RejectRequest(c.Request.Context(), actor, c.Param("id"), req.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.absolutize(c, &result)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// SubmitReceipt stores the post-purchase receipt and validates it against the
// purchase order
// @Summary      Submit receipt
// @Description  Owner-only, approved requests only, at most once; the receipt is validated against the purchase order
// @Tags         requests
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id       path      string  true  "Request ID"
// @Param        receipt  formData  file    true  "Receipt document (pdf, image or text)"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/submit-receipt [post]
func (h *RequestHandler) SubmitReceipt(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	upload, closeUpload, err := formUpload(c, "receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	if upload == nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Receipt file is required"))
		return
	}
	defer closeUpload()

	result, err := h.requestService.SubmitReceipt(c.Request.Context(), actor, c.Param("id"), *upload)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.absolutize(c, &result)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ExportRequests downloads visible requests as an XLSX workbook
// @Summary      Export purchase requests
// @Description  Downloads the caller's visible requests in a date window as an XLSX workbook
// @Tags         requests
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        from  query  string  false  "Start date (2006-01-02 or RFC3339)"
// @Param        to    query  string  false  "End date (2006-01-02 or RFC3339)"
// @Success      200  {file}    file
// @Failure      400  {object}  response.Response
// @Router       /api/requests/export [get]
func (h *RequestHandler) ExportRequests(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	from, err := parseDateQuery(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid from date, expected 2006-01-02 or RFC3339"))
		return
	}
	to, err := parseDateQuery(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid to date, expected 2006-01-02 or RFC3339"))
		return
	}

	data, filename, err := h.exportService.ExportRequestsXLSX(c.Request.Context(), actor, from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// --- Helpers ---

// respondError maps a service error onto the response envelope. Internal
// failures are logged and masked with a generic message.
func (h *RequestHandler) respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = "Internal server error"
	}
	c.JSON(status, response.Error(status, msg))
}

// formUpload opens an optional multipart file field. A missing field (or a
// non-multipart request) yields a nil upload.
func formUpload(c *gin.Context, field string) (*service.Upload, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("invalid %s upload: %w", field, err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s upload: %w", field, err)
	}
	return &service.Upload{Filename: fh.Filename, Content: f}, func() { _ = f.Close() }, nil
}

// absolutize rewrites media URL paths into absolute URLs against the serving
// request's origin.
func (h *RequestHandler) absolutize(c *gin.Context, resp *service.RequestResponse) {
	origin := requestOrigin(c)
	abs := func(u *string) *string {
		if u == nil {
			return nil
		}
		v := origin + *u
		return &v
	}
	resp.Proforma = abs(resp.Proforma)
	resp.PurchaseOrder = abs(resp.PurchaseOrder)
	resp.Receipt = abs(resp.Receipt)
}

func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + c.Request.Host
}

// parseDateQuery accepts a date-only value or a full RFC3339 timestamp; an
// empty value means the bound is open.
func parseDateQuery(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
