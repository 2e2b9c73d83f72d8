package http

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-financing/internal/application/service"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/infrastructure/export"
)

// pdfContentType is the only upload type accepted
const pdfContentType = "application/pdf"

// Handlers contains all HTTP request handlers
type Handlers struct {
	invoices service.InvoiceService
	users    service.UserService
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(invoices service.InvoiceService, users service.UserService, logger Logger) *Handlers {
	return &Handlers{
		invoices: invoices,
		users:    users,
		logger:   logger,
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
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateInvoice handles POST /invoices/create
func (h *Handlers) CreateInvoice(c *gin.Context) {
	cs, ok := h.bindChangeSet(c)
	if !ok {
		return
	}
	inv, err := h.invoices.Create(c.Request.Context(), currentUser(c), cs)
	h.respond(c, http.StatusCreated, inv, err, "Failed to create invoice")
}

// UploadInvoice handles POST /invoices/upload
func (h *Handlers) UploadInvoice(c *gin.Context) {
	document, ok := h.readPDF(c)
	if !ok {
		return
	}
	inv, err := h.invoices.Upload(c.Request.Context(), currentUser(c), document)
	h.respond(c, http.StatusAccepted, inv, err, "Failed to upload invoice")
}

// OnboardingUpload handles POST /onboarding/upload
func (h *Handlers) OnboardingUpload(c *gin.Context) {
	document, ok := h.readPDF(c)
	if !ok {
		return
	}
	inv, err := h.invoices.OnboardingUpload(c.Request.Context(), document)
	h.respond(c, http.StatusAccepted, inv, err, "Failed to upload onboarding invoice")
}

// Demo handles POST /invoices/demo
func (h *Handlers) Demo(c *gin.Context) {
	document, ok := h.readPDF(c)
	if !ok {
		return
	}
	inv, err := h.invoices.Demo(c.Request.Context(), document)
	h.respond(c, http.StatusOK, inv, err, "Demo analysis failed")
}

// ListInvoices handles GET /invoices/list
func (h *Handlers) ListInvoices(c *gin.Context) {
	invoices, err := h.invoices.List(c.Request.Context(), currentUser(c))
	if invoices == nil && err == nil {
		invoices = []*entity.Invoice{}
	}
	h.respond(c, http.StatusOK, invoices, err, "Failed to list invoices")
}

// ExportInvoices handles GET /invoices/export
func (h *Handlers) ExportInvoices(c *gin.Context) {
	data, err := h.invoices.Export(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err, "Failed to export invoices")
		return
	}
	filename := fmt.Sprintf("invoices_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, export.ContentType, data)
}

// GetInvoice handles GET /invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	inv, err := h.invoices.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, inv, err, "Failed to get invoice")
}

// GetOnboarding handles GET /onboarding/:id
func (h *Handlers) GetOnboarding(c *gin.Context) {
	inv, err := h.invoices.GetOnboarding(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, inv, err, "Failed to get onboarding invoice")
}

// UpdateInvoice handles PATCH /invoices/:id
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	cs, ok := h.bindChangeSet(c)
	if !ok {
		return
	}
	inv, err := h.invoices.Update(c.Request.Context(), currentUser(c), c.Param("id"), cs)
	h.respond(c, http.StatusOK, inv, err, "Failed to update invoice")
}

// UpdateOnboarding handles PUT /onboarding/:id
func (h *Handlers) UpdateOnboarding(c *gin.Context) {
	cs, ok := h.bindChangeSet(c)
	if !ok {
		return
	}
	inv, err := h.invoices.UpdateOnboarding(c.Request.Context(), c.Param("id"), cs)
	h.respond(c, http.StatusOK, inv, err, "Failed to update onboarding invoice")
}

// ClaimInvoice handles POST /invoices/:id/claim
func (h *Handlers) ClaimInvoice(c *gin.Context) {
	inv, err := h.invoices.Claim(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, inv, err, "Failed to claim invoice")
}

// ScoreInvoice handles POST /invoices/:id/score
func (h *Handlers) ScoreInvoice(c *gin.Context) {
	inv, err := h.invoices.Score(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, inv, err, "Failed to score invoice")
}

// AcceptInvoice handles POST /invoices/:id/accept
func (h *Handlers) AcceptInvoice(c *gin.Context) {
	inv, err := h.invoices.Accept(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, inv, err, "Failed to accept invoice")
}

// RefuseInvoice handles POST /invoices/:id/refuse
func (h *Handlers) RefuseInvoice(c *gin.Context) {
	inv, err := h.invoices.Refuse(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, inv, err, "Failed to refuse invoice")
}

// SendInvoice handles POST /invoices/:id/send
func (h *Handlers) SendInvoice(c *gin.Context) {
	inv, err := h.invoices.Send(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, inv, err, "Failed to send invoice")
}

// GetMe handles GET /users/me
func (h *Handlers) GetMe(c *gin.Context) {
	user, err := h.users.Me(c.Request.Context(), currentUser(c))
	h.respond(c, http.StatusOK, user, err, "Failed to get profile")
}

// UpdateMe handles PUT /users/me
func (h *Handlers) UpdateMe(c *gin.Context) {
	var input service.ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	user, err := h.users.Upsert(c.Request.Context(), currentUser(c), input)
	h.respond(c, http.StatusOK, user, err, "Failed to update profile")
}

func (h *Handlers) bindChangeSet(c *gin.Context) (entity.ChangeSet, bool) {
	var cs entity.ChangeSet
	if err := c.ShouldBindJSON(&cs); err != nil {
		h.badRequest(c, err)
		return cs, false
	}
	return cs, true
}

// readPDF reads the multipart "file" part. Anything but application/pdf is
// rejected before an invoice exists.
func (h *Handlers) readPDF(c *gin.Context) ([]byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, err)
		return nil, false
	}
	if header.Header.Get("Content-Type") != pdfContentType {
		h.logger.Warn("Rejected upload", "filename", header.Filename, "content_type", header.Header.Get("Content-Type"))
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "Only PDF files are allowed",
		})
		return nil, false
	}

	f, err := header.Open()
	if err != nil {
		h.fail(c, err, "Failed to open upload")
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, err, "Failed to read upload")
		return nil, false
	}
	return data, true
}

func (h *Handlers) respond(c *gin.Context, status int, data interface{}, err error, msg string) {
	if err != nil {
		h.fail(c, err, msg)
		return
	}
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// fail writes the error envelope. Server-side failures are logged in full
// and answered with a generic message.
func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		detail = internalErrorMessage
	} else {
		h.logger.Warn(msg, "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, Response{
		Success: false,
		Error:   detail,
	})
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		status = http.StatusBadRequest
	}
	c.JSON(status, Response{
		Success: false,
		Error:   "invalid request: " + err.Error(),
	})
}
