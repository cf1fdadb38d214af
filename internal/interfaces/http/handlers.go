package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/application/service"
	"github.com/garyjia/invoice-vision/internal/application/session"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// Ingestor runs a batch of images through the pipeline
type Ingestor interface {
	IngestBatch(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error)
}

// RecordManager serves an owner's stored and held records
type RecordManager interface {
	List(ctx context.Context, owner string, opts port.ListOptions) ([]entity.InvoiceRecord, error)
	Update(ctx context.Context, owner string, id int64, updates entity.FieldUpdates) (*entity.InvoiceRecord, error)
	Delete(ctx context.Context, owner string, ids []int64) (int64, error)
	Held(owner string) []entity.InvoiceRecord
	Summary(ctx context.Context, owner string) (*entity.InvoiceSummary, error)
	Export(ctx context.Context, owner, format string) (*service.ExportFile, error)
}

// AccountService registers and authenticates users
type AccountService interface {
	Register(ctx context.Context, username, password string) (*entity.User, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error)
	Authenticate(token string) (string, error)
}

// HealthReporter reports overall health plus per-component details
type HealthReporter func(ctx context.Context) (bool, any)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps           Dependencies
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, maxUploadBytes int64, logger Logger) *Handlers {
	return &Handlers{
		deps:           deps,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Components any    `json:"components,omitempty"`
}

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned by login
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// ListInvoicesRequest represents query parameters for listing invoices
type ListInvoicesRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// DeleteRequest carries the ids to delete; negative ids are held records
type DeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// DebugRequest toggles the session debug trail
type DebugRequest struct {
	Enabled bool `json:"enabled"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.deps.Health != nil {
		healthy, details := h.deps.Health(c.Request.Context())
		response.Components = details
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// Register handles POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "username and password are required"})
		return
	}

	user, err := h.deps.Accounts.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, entity.ErrUserExists):
		c.JSON(http.StatusConflict, Response{Error: "username already taken"})
		return
	case errors.Is(err, entity.ErrInvalidField):
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to register user", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "username and password are required"})
		return
	}

	token, expires, err := h.deps.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, entity.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, Response{Error: "invalid username or password"})
		return
	}
	if err != nil {
		h.logger.Error("Login failed", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "login failed"})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    TokenResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339)},
	})
}

// Logout handles POST /api/v1/auth/logout. Held records and queued uploads
// are discarded with the session.
func (h *Handlers) Logout(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	var dropped int
	if sess, found := h.deps.Sessions.Lookup(owner); found {
		dropped = len(sess.Held())
	}
	h.deps.Sessions.Clear(owner)
	if dropped > 0 {
		h.logger.Warn("Session cleared with held records", "owner", owner, "held", dropped)
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"discarded_held_records": dropped}})
}

// SetDebug handles PUT /api/v1/session/debug
func (h *Handlers) SetDebug(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	var req DebugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body"})
		return
	}

	h.deps.Sessions.Get(owner).SetDebug(req.Enabled)
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// QueueUploads handles POST /api/v1/invoices/uploads. Files wait in the
// session until the next scan.
func (h *Handlers) QueueUploads(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	uploads, err := h.readUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, Response{Error: "no files uploaded"})
		return
	}

	sess := h.deps.Sessions.Get(owner)
	for _, u := range uploads {
		sess.AddUpload(u)
	}

	c.JSON(http.StatusAccepted, Response{Success: true, Data: gin.H{"queued": len(uploads)}})
}

// Scan handles POST /api/v1/invoices/scan. It processes the files of this
// request plus any queued uploads, in upload order.
func (h *Handlers) Scan(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	uploads, err := h.readUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	sess := h.deps.Sessions.Get(owner)
	if debug, set := c.GetPostForm("debug"); set {
		enabled, _ := strconv.ParseBool(debug)
		sess.SetDebug(enabled)
	}

	queued := sess.TakeUploads()
	all := append(queued, uploads...)
	if len(all) == 0 {
		c.JSON(http.StatusBadRequest, Response{Error: "no files to scan"})
		return
	}

	items := make([]service.BatchItem, 0, len(all))
	for _, u := range all {
		items = append(items, service.BatchItem{FileName: u.FileName, Image: u.Data})
	}

	result, err := h.deps.Ingest.IngestBatch(c.Request.Context(), service.BatchRequest{
		Owner:   owner,
		Items:   items,
		Model:   c.PostForm("model"),
		APIKey:  c.GetHeader("X-Vision-Api-Key"),
		Session: sess,
	})

	switch {
	case errors.Is(err, entity.ErrMissingAPIKey):
		for _, u := range all {
			sess.AddUpload(u)
		}
		c.JSON(http.StatusBadRequest, Response{Error: "no vision API key is configured; set one or send X-Vision-Api-Key"})
	case errors.Is(err, entity.ErrUnauthorized):
		c.JSON(http.StatusBadGateway, Response{Data: result, Error: "the vision API rejected the API key"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Scan interrupted", "owner", owner, "error", err)
		c.JSON(http.StatusRequestTimeout, Response{Data: result, Error: "scan interrupted"})
	case err != nil:
		h.logger.Error("Scan failed", "owner", owner, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Data: result, Error: "scan failed"})
	default:
		c.JSON(http.StatusOK, Response{Success: true, Data: result})
	}
}

// ListInvoices handles GET /api/v1/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	var req ListInvoicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid query parameters"})
		return
	}
	if req.Limit < 0 || req.Limit > 500 {
		req.Limit = 500
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	records, err := h.deps.Records.List(c.Request.Context(), owner, port.ListOptions{
		Status: entity.CompletenessStatus(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		h.logger.Error("Failed to list invoices", "owner", owner, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to retrieve invoices"})
		return
	}
	if records == nil {
		records = []entity.InvoiceRecord{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// UpdateInvoice handles PATCH /api/v1/invoices/:id
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid invoice ID"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "unreadable request body"})
		return
	}

	var updates entity.FieldUpdates
	if err := decodeValidated(compiledUpdateSchema, body, &updates); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	record, err := h.deps.Records.Update(c.Request.Context(), owner, id, updates)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Error: "invoice not found"})
	case errors.Is(err, entity.ErrInvalidField):
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
	case err != nil:
		h.logger.Error("Failed to update invoice", "owner", owner, "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to update invoice"})
	default:
		c.JSON(http.StatusOK, Response{Success: true, Data: record})
	}
}

// DeleteInvoices handles DELETE /api/v1/invoices
func (h *Handlers) DeleteInvoices(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "unreadable request body"})
		return
	}

	var req DeleteRequest
	if err := decodeValidated(compiledDeleteSchema, body, &req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	removed, err := h.deps.Records.Delete(c.Request.Context(), owner, req.IDs)
	if err != nil {
		h.logger.Error("Failed to delete invoices", "owner", owner, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to delete invoices"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"deleted": removed}})
}

// ExportInvoices handles GET /api/v1/invoices/export?format=csv|xlsx
func (h *Handlers) ExportInvoices(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	format := c.DefaultQuery("format", "xlsx")
	file, err := h.deps.Records.Export(c.Request.Context(), owner, format)
	if errors.Is(err, service.ErrUnsupportedFormat) {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to export invoices", "owner", owner, "format", format, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to export invoices"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.FileName))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Summary handles GET /api/v1/invoices/summary
func (h *Handlers) Summary(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	summary, err := h.deps.Records.Summary(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to summarize invoices", "owner", owner, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to summarize invoices"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// HeldInvoices handles GET /api/v1/invoices/held
func (h *Handlers) HeldInvoices(c *gin.Context) {
	owner, ok := mustOwner(c)
	if !ok {
		return
	}

	held := h.deps.Records.Held(owner)
	if held == nil {
		held = []entity.InvoiceRecord{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: held})
}

// readUploads reads every file of the multipart field "files". A request
// without a multipart body yields no uploads.
func (h *Handlers) readUploads(c *gin.Context) ([]session.Upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid upload: %w", err)
	}

	headers := form.File["files"]
	uploads := make([]session.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, session.Upload{FileName: fh.Filename, Data: data})
	}
	return uploads, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
