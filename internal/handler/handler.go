package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"logbook/internal/admin"
	"logbook/internal/auth"
	"logbook/internal/ledger"
	"logbook/internal/presence"
	"logbook/internal/queue"
	"logbook/internal/registry"
	"logbook/internal/report"
)

// Handler exposes the registry, state machine, reporting and admin gate
// over HTTP. It owns no business rules; every decision lives in the
// internal services.
type Handler struct {
	identities *registry.Service
	scans      *presence.Service
	reports    *report.Service
	accounts   *admin.Accounts
	jobs       queue.Queue
	logger     *zap.Logger

	jwtIssuer  string
	jwtKey     string
	sessionTTL time.Duration
}

// New wires the handler.
func New(identities *registry.Service, scans *presence.Service, reports *report.Service,
	accounts *admin.Accounts, jobs queue.Queue, logger *zap.Logger,
	jwtIssuer, jwtKey string, sessionTTL time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		identities: identities,
		scans:      scans,
		reports:    reports,
		accounts:   accounts,
		jobs:       jobs,
		logger:     logger,
		jwtIssuer:  jwtIssuer,
		jwtKey:     jwtKey,
		sessionTTL: sessionTTL,
	}
}

// ---------- Registration ----------

// RegisterIdentity handles the registration form: validates, stores the
// identity, and queues the token artifact render.
func (h *Handler) RegisterIdentity(c *gin.Context) {
	var in registry.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": err.Error()})
		return
	}

	out, err := h.identities.Register(c.Request.Context(), in)
	if err != nil {
		var verr *registry.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": verr.Error()})
		case errors.Is(err, registry.ErrDuplicateExternalID):
			c.JSON(http.StatusConflict, gin.H{"kind": "duplicate_external_id", "error": "that ID number is already registered"})
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "registration could not be stored"})
		}
		return
	}

	msg, err := queue.NewMessage(queue.TypeRenderToken, queue.RenderJob{
		Encoded: out.Token,
		Path:    out.Identity.TokenPath,
	})
	if err == nil {
		err = h.jobs.Publish(c.Request.Context(), msg)
	}
	if err != nil {
		// The registration itself stands; the artifact can be re-rendered.
		h.logger.Warn("render job publish failed",
			zap.Int64("identity_id", out.Identity.ID), zap.Error(err))
	}

	c.JSON(http.StatusCreated, out)
}

// ExistsExternalID answers the registration form's live duplicate probe.
func (h *Handler) ExistsExternalID(c *gin.Context) {
	externalID := c.Query("external_id")
	if externalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": "external_id is required"})
		return
	}
	exists, err := h.identities.ExistsExternalID(c.Request.Context(), externalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"external_id": externalID, "exists": exists})
}

// ---------- Scanning ----------

type scanRequest struct {
	Token string `json:"token" binding:"required"`
}

// Scan processes one scan event and reports arrival or departure.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": err.Error()})
		return
	}

	result, err := h.scans.Scan(c.Request.Context(), req.Token)
	if err != nil {
		var lerr *presence.LedgerError
		switch {
		case errors.Is(err, presence.ErrInvalidFormat):
			c.JSON(http.StatusBadRequest, gin.H{"kind": "invalid_format", "error": "scanned data is not a valid token"})
		case errors.Is(err, presence.ErrUnknownIdentity):
			c.JSON(http.StatusNotFound, gin.H{"kind": "unknown_identity", "error": "no registered identity matches this token"})
		case errors.As(err, &lerr):
			c.JSON(http.StatusConflict, gin.H{"kind": "ledger_error", "error": "the visit record could not be updated"})
		default:
			h.logger.Error("scan failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "scan could not be recorded"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// ---------- Admin: session ----------

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogin verifies the credential pair and issues a session token.
func (h *Handler) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": err.Error()})
		return
	}

	ok, err := h.accounts.Verify(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "credential check failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"kind": "access_denied", "error": "username or password is incorrect"})
		return
	}

	session, err := auth.Issue(req.Username, h.jwtIssuer, h.jwtKey, h.sessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "session issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": session.Token, "expires_at": session.ExpiresAt.Unix()})
}

// CreateAccount adds an operator after a second admin approves.
func (h *Handler) CreateAccount(c *gin.Context) {
	var req struct {
		Username         string `json:"username" binding:"required"`
		Password         string `json:"password" binding:"required"`
		ConfirmPassword  string `json:"confirm_password" binding:"required"`
		VerifierUsername string `json:"verifier_username" binding:"required"`
		VerifierPassword string `json:"verifier_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": err.Error()})
		return
	}

	account, err := h.accounts.Create(c.Request.Context(),
		req.Username, req.Password, req.ConfirmPassword,
		req.VerifierUsername, req.VerifierPassword)
	if err != nil {
		switch {
		case errors.Is(err, admin.ErrUsernameTooShort),
			errors.Is(err, admin.ErrPasswordTooShort),
			errors.Is(err, admin.ErrPasswordMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": err.Error()})
		case errors.Is(err, admin.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"kind": "validation_error", "error": err.Error()})
		case errors.Is(err, admin.ErrAccessDenied):
			c.JSON(http.StatusUnauthorized, gin.H{"kind": "access_denied", "error": "verifier credentials are incorrect"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "account could not be created"})
		}
		return
	}
	c.JSON(http.StatusCreated, account)
}

// ---------- Admin: logs ----------

// TodayLogs lists today's visits.
func (h *Handler) TodayLogs(c *gin.Context) {
	rows, err := h.reports.Today(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "log listing failed"})
		return
	}
	if rows == nil {
		rows = []report.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": rows})
}

// SearchLogs runs the admin filter from query parameters.
func (h *Handler) SearchLogs(c *gin.Context) {
	f := filterFromQuery(c)
	rows, err := h.reports.Search(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "log search failed"})
		return
	}
	if rows == nil {
		rows = []report.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": rows})
}

// LogDetail shows one visit with detail-view placeholders.
func (h *Handler) LogDetail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": "log id must be numeric"})
		return
	}
	row, err := h.reports.Detail(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "log lookup failed"})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"kind": "ledger_error", "error": "no such log record"})
		return
	}
	c.JSON(http.StatusOK, row)
}

// Export streams the filtered visits as a text report or a spreadsheet.
func (h *Handler) Export(c *gin.Context) {
	f := filterFromQuery(c)
	rows, err := h.reports.Search(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "export query failed"})
		return
	}

	switch c.DefaultQuery("format", "text") {
	case "xlsx":
		data, err := report.ExportXLSX(rows)
		if err != nil {
			h.logger.Error("xlsx export failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "export generation failed"})
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+report.ExportFilename("xlsx"))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	case "text":
		c.Header("Content-Disposition", "attachment; filename="+report.ExportFilename("txt"))
		c.Data(http.StatusOK, "text/plain; charset=utf-8", report.ExportText(rows, time.Now()))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": "format must be text or xlsx"})
	}
}

// ---------- Admin: maintenance ----------

// DeleteIdentity removes an identity and its visit history.
func (h *Handler) DeleteIdentity(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": "identity id must be numeric"})
		return
	}
	if err := h.identities.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"kind": "unknown_identity", "error": "no such identity"})
			return
		}
		h.logger.Error("identity delete failed", zap.Int64("identity_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "persistence_error", "error": "identity could not be deleted"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetSequence rewrites a table's id counter to continue from the highest
// surviving id.
func (h *Handler) ResetSequence(c *gin.Context) {
	var req struct {
		Table string `json:"table" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": err.Error()})
		return
	}
	if err := h.identities.ResetSequence(c.Request.Context(), req.Table); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "validation_error", "error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func filterFromQuery(c *gin.Context) ledger.Filter {
	return ledger.Filter{
		Term:     c.Query("term"),
		Field:    c.DefaultQuery("field", ledger.FieldName),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Category: c.DefaultQuery("category", ledger.CategoryAll),
	}
}
