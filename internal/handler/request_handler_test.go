package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend/internal/database"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	apiTestSecret   = "api-test-secret"
	apiProformaText = "Vendor: Acme Corp\nCurrency: USD\nTotal: 1250.00\nLaptop - 1000.00\nDocking station - 250.00"
)

type apiExtractor struct {
	text string
}

func (s *apiExtractor) Extract(ctx context.Context, path string) (string, error) {
	return s.text, nil
}

type apiHarness struct {
	router    *gin.Engine
	db        *gorm.DB
	extractor *apiExtractor

	staffID uuid.UUID

	staffToken  string
	staff2Token string
	l1Token     string
	l2Token     string
	finToken    string
}

func mintToken(t *testing.T, id uuid.UUID, name, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   id.String(),
		"email": strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		"name":  name,
		"role":  role,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(apiTestSecret))
	require.NoError(t, err)
	return signed
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	t.Setenv("JWT_SECRET", apiTestSecret)
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	store, err := storage.NewLocal(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	extractor := &apiExtractor{text: apiProformaText}
	requestRepo := repository.NewRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	requestService := service.NewRequestService(service.RequestServiceDeps{
		Requests:       requestRepo,
		Approvals:      repository.NewApprovalRepository(db),
		Users:          repository.NewUserRepository(db),
		Audit:          auditRepo,
		Tx:             repository.NewTransactionManager(db),
		Store:          store,
		Extractor:      extractor,
		MediaURL:       "/media",
		FinanceViewAll: true,
		Logger:         zerolog.Nop(),
	})

	router := gin.New()
	api := router.Group("")
	NewRequestHandler(requestService, service.NewExportService(requestRepo, true), zerolog.Nop()).RegisterRoutes(api)
	NewAuditHandler(service.NewAuditService(auditRepo)).RegisterRoutes(api)
	NewStatisticsHandler(service.NewStatisticsService(db)).RegisterRoutes(api)

	staffID := uuid.New()
	return &apiHarness{
		router:      router,
		db:          db,
		extractor:   extractor,
		staffID:     staffID,
		staffToken:  mintToken(t, staffID, "Sam Staff", "staff"),
		staff2Token: mintToken(t, uuid.New(), "Olive Other", "staff"),
		l1Token:     mintToken(t, uuid.New(), "Lena Levelone", "approver-level-1"),
		l2Token:     mintToken(t, uuid.New(), "Luis Leveltwo", "approver-level-2"),
		finToken:    mintToken(t, uuid.New(), "Fran Finance", "finance"),
	}
}

func (h *apiHarness) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	data, ok := decodeBody(t, w)["data"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return data
}

func mustMap(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	return m
}

func mustString(t *testing.T, v interface{}) string {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok)
	return s
}

func (h *apiHarness) createRequest(t *testing.T, token string, withProforma bool) map[string]interface{} {
	t.Helper()
	fields := map[string]string{
		"title":       "Hardware refresh",
		"description": "Laptops for the team",
		"amount":      "1250.00",
	}
	var buf *bytes.Buffer
	var ctype string
	if withProforma {
		buf, ctype = multipartBody(t, fields, "proforma", "proforma.txt", "stored bytes")
	} else {
		buf, ctype = multipartBody(t, fields, "", "", "")
	}

	w := h.do(http.MethodPost, "/api/requests", token, buf, ctype)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return dataOf(t, w)
}

func (h *apiHarness) approve(t *testing.T, token, id, comment string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	ctype := ""
	if comment != "" {
		body = strings.NewReader(fmt.Sprintf(`{"comment":%q}`, comment))
		ctype = "application/json"
	}
	return h.do(http.MethodPatch, "/api/requests/"+id+"/approve", token, body, ctype)
}

func (h *apiHarness) fullyApprove(t *testing.T, id string) {
	t.Helper()
	w := h.approve(t, h.l1Token, id, "fine by tier one")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = h.approve(t, h.l2Token, id, "fine by tier two")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// --- Tests ---

func TestRequests_RequireAuthentication(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodGet, "/api/requests", "", nil, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "Authorization is missing")
}

func TestCreateAndGetRequest(t *testing.T) {
	h := newAPIHarness(t)

	data := h.createRequest(t, h.staffToken, true)
	id := mustString(t, data["id"])

	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "1250.00", data["amount"])
	assert.Equal(t, h.staffID.String(), data["created_by"])
	meta := mustMap(t, data["document_metadata"])
	assert.Equal(t, "Acme Corp", meta["vendor"])
	proforma := mustString(t, data["proforma"])
	assert.True(t, strings.HasPrefix(proforma, "http://example.com/media/proformas/"), proforma)

	// the owner reads it back
	w := h.do(http.MethodGet, "/api/requests/"+id, h.staffToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, dataOf(t, w)["id"])

	// approvers see it, other staff get a 404
	w = h.do(http.MethodGet, "/api/requests/"+id, h.l1Token, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodGet, "/api/requests/"+id, h.staff2Token, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRequest_ValidationErrors(t *testing.T) {
	h := newAPIHarness(t)

	// title is required by binding
	buf, ctype := multipartBody(t, map[string]string{"amount": "10.00"}, "", "", "")
	w := h.do(http.MethodPost, "/api/requests", h.staffToken, buf, ctype)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request payload")

	// amount format is checked by the workflow
	buf, ctype = multipartBody(t, map[string]string{"title": "Bad amount", "amount": "12.345"}, "", "", "")
	w = h.do(http.MethodPost, "/api/requests", h.staffToken, buf, ctype)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "two decimal places")
}

func TestListRequests_Envelope(t *testing.T) {
	h := newAPIHarness(t)
	h.createRequest(t, h.staffToken, false)
	h.createRequest(t, h.staffToken, false)
	h.createRequest(t, h.staff2Token, false)

	w := h.do(http.MethodGet, "/api/requests", h.staffToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 200, body["status"])
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 20, body["limit"])
	assert.Len(t, body["data"], 2)

	w = h.do(http.MethodGet, "/api/requests?limit=1&page=2", h.l1Token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["page"])
	assert.EqualValues(t, 1, body["limit"])
	assert.Len(t, body["data"], 1)
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createRequest(t, h.staffToken, true)
	id := mustString(t, created["id"])

	// tier two cannot act before tier one
	w := h.approve(t, h.l2Token, id, "jumping the queue")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Level 1 approval required")

	// staff cannot act at all
	w = h.approve(t, h.staffToken, id, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.approve(t, h.l1Token, id, "fine by tier one")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", dataOf(t, w)["status"])

	// an empty body is fine, the comment is optional
	w = h.approve(t, h.l2Token, id, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "approved", data["status"])
	require.NotNil(t, data["po_generated_at"])

	po := mustMap(t, mustMap(t, data["document_metadata"])["purchase_order"])
	assert.Regexp(t, `^PO-\d{8}-[0-9A-F]{8}$`, po["po_number"])
	poURL := mustString(t, data["purchase_order"])
	assert.True(t, strings.HasPrefix(poURL, "http://example.com/media/purchase_orders/PO-"), poURL)
	assert.Len(t, data["approvals"], 2)
}

func TestRejectOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createRequest(t, h.staffToken, false)
	id := mustString(t, created["id"])

	// tier two may reject outright, no tier one decision needed
	body := strings.NewReader(`{"comment":"over budget"}`)
	w := h.do(http.MethodPatch, "/api/requests/"+id+"/reject", h.l2Token, body, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", dataOf(t, w)["status"])

	// terminal states accept no further decisions
	w = h.approve(t, h.l1Token, id, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Only pending requests can be acted upon")
}

func TestUpdateOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createRequest(t, h.staffToken, false)
	id := mustString(t, created["id"])

	body := strings.NewReader(`{"title":"Hardware refresh, revised","amount":"990.00"}`)
	w := h.do(http.MethodPatch, "/api/requests/"+id, h.staffToken, body, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "Hardware refresh, revised", data["title"])
	assert.Equal(t, "990.00", data["amount"])

	body = strings.NewReader(`{"title":"not yours"}`)
	w = h.do(http.MethodPatch, "/api/requests/"+id, h.l1Token, body, "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWithdrawOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createRequest(t, h.staffToken, false)
	id := mustString(t, created["id"])

	w := h.do(http.MethodDelete, "/api/requests/"+id, h.staff2Token, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodDelete, "/api/requests/"+id, h.staffToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/requests/"+id, h.staffToken, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitReceiptOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createRequest(t, h.staffToken, true)
	id := mustString(t, created["id"])
	h.fullyApprove(t, id)

	// the receipt file is mandatory
	w := h.do(http.MethodPost, "/api/requests/"+id+"/submit-receipt", h.staffToken, strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Receipt file is required")

	h.extractor.text = "RECEIPT\nACME CORP\nPaid: 1250.00"
	buf, ctype := multipartBody(t, nil, "receipt", "receipt.txt", "receipt bytes")
	w = h.do(http.MethodPost, "/api/requests/"+id+"/submit-receipt", h.staffToken, buf, ctype)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataOf(t, w)
	validation := mustMap(t, data["receipt_validation"])
	assert.Equal(t, true, validation["is_valid"])
	receiptURL := mustString(t, data["receipt"])
	assert.True(t, strings.HasPrefix(receiptURL, "http://example.com/media/receipts/"), receiptURL)

	// a second submission conflicts
	buf, ctype = multipartBody(t, nil, "receipt", "receipt.txt", "receipt bytes")
	w = h.do(http.MethodPost, "/api/requests/"+id+"/submit-receipt", h.staffToken, buf, ctype)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Receipt already submitted")
}

func TestExportOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	h.createRequest(t, h.staffToken, false)

	w := h.do(http.MethodGet, "/api/requests/export", h.staffToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "purchase_requests_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Purchase Requests")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Hardware refresh", rows[1][1])

	w = h.do(http.MethodGet, "/api/requests/export?from=yesterday", h.staffToken, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid from date")
}
