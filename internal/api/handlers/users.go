package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/ca"
	"github.com/adamscao/ovpnbot/internal/catalog"
	"github.com/adamscao/ovpnbot/internal/db/repository"
	"github.com/adamscao/ovpnbot/internal/issuance"
	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/adamscao/ovpnbot/internal/policy"
	"github.com/adamscao/ovpnbot/pkg/certutil"
	"github.com/gin-gonic/gin"
)

// UserCreator runs the create-user pipeline
type UserCreator interface {
	CreateUser(ctx context.Context, username string) (*issuance.IssuedConfig, error)
}

// Catalog reads issued client configs
type Catalog interface {
	Page(pageIndex int) (catalog.Page, error)
	ReadUserConfig(username string) (string, []byte, error)
}

// CertificateInspector reads issued certificates
type CertificateInspector interface {
	CertificateInfo(username string) (*certutil.Summary, error)
}

// IssuanceLookup finds issuance records
type IssuanceLookup interface {
	GetLatestByUsername(ctx context.Context, username string) (*models.Issuance, error)
}

// UserHandler exposes user issuance and the config catalog
type UserHandler struct {
	creator   UserCreator
	catalog   Catalog
	certs     CertificateInspector
	issuances IssuanceLookup
	trail     *audit.Trail
}

// NewUserHandler creates a new user handler. issuances may be nil.
func NewUserHandler(creator UserCreator, cat Catalog, certs CertificateInspector, issuances IssuanceLookup, trail *audit.Trail) *UserHandler {
	return &UserHandler{
		creator:   creator,
		catalog:   cat,
		certs:     certs,
		issuances: issuances,
		trail:     trail,
	}
}

// CreateUserRequest represents a user creation request
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
}

// CreateUserResponse represents a user creation response
type CreateUserResponse struct {
	Status     string `json:"status"`
	Username   string `json:"username"`
	ConfigPath string `json:"config_path"`
	Message    string `json:"message"`
}

// CreateUser issues credentials for a new user
// POST /v1/admin/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	res, err := h.creator.CreateUser(c.Request.Context(), req.Username)
	if err != nil {
		respondIssuanceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateUserResponse{
		Status:     "ok",
		Username:   res.Username,
		ConfigPath: res.Path,
		Message:    res.Message,
	})
}

func respondIssuanceError(c *gin.Context, err error) {
	e, ok := issuance.AsError(err)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	switch e.Kind {
	case issuance.KindInvalidUsername:
		RespondError(c, http.StatusBadRequest, string(e.Kind), e.Detail)
	case issuance.KindCANotAvailable:
		RespondError(c, http.StatusServiceUnavailable, string(e.Kind), "easy-rsa not found on host")
	case issuance.KindUserAlreadyExists:
		RespondError(c, http.StatusConflict, string(e.Kind), fmt.Sprintf("User %s already exists", e.Username))
	case issuance.KindCertificateIssuanceFailed:
		RespondErrorWithDetails(c, http.StatusBadGateway, string(e.Kind), "Certificate issuance failed", gin.H{
			"stage":  e.Stage,
			"detail": e.Detail,
		})
	case issuance.KindConfigAssemblyFailed:
		RespondErrorWithDetails(c, http.StatusInternalServerError, string(e.Kind),
			"Certificate issued but config assembly failed; manual reconciliation required", gin.H{
				"partial":  e.Partial,
				"username": e.Username,
				"stage":    e.Stage,
				"detail":   e.Detail,
			})
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", e.Error())
	}
}

// ListUsers returns one catalog page
// GET /v1/admin/users?page=N
func (h *UserHandler) ListUsers(c *gin.Context) {
	pageIndex := 0
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request", "page must be an integer")
			return
		}
		pageIndex = n
	}

	page, err := h.catalog.Page(pageIndex)
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogDirMissing) {
			RespondError(c, http.StatusNotFound, "catalog_dir_missing", err.Error())
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	RespondSuccess(c, page)
}

// DownloadConfig sends a user's client config as an attachment
// GET /v1/admin/users/:username/config
func (h *UserHandler) DownloadConfig(c *gin.Context) {
	username := c.Param("username")

	path, data, err := h.catalog.ReadUserConfig(username)
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrInvalidUsername):
			RespondError(c, http.StatusBadRequest, "invalid_username", err.Error())
		case errors.Is(err, catalog.ErrConfigFileNotFound):
			RespondError(c, http.StatusNotFound, "config_not_found", err.Error())
		default:
			RespondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	h.trail.Record(c.Request.Context(), &models.AuditLog{
		Action:   models.ActionConfigDownload,
		Username: username,
		Success:  true,
		Details:  fmt.Sprintf(`{"path":%q}`, path),
	})

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	c.Data(http.StatusOK, "application/x-openvpn-profile", data)
}

// CertificateResponse describes a user's issued certificate
type CertificateResponse struct {
	Username    string            `json:"username"`
	Certificate *certutil.Summary `json:"certificate"`
	Issuance    *models.Issuance  `json:"issuance,omitempty"`
}

// GetCertificate returns the issued certificate of a user
// GET /v1/admin/users/:username/certificate
func (h *UserHandler) GetCertificate(c *gin.Context) {
	username := c.Param("username")
	if err := policy.ValidateUsername(username); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_username", err.Error())
		return
	}

	summary, err := h.certs.CertificateInfo(username)
	if err != nil {
		if errors.Is(err, ca.ErrCertificateNotFound) {
			RespondError(c, http.StatusNotFound, "certificate_not_found", err.Error())
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	resp := CertificateResponse{Username: username, Certificate: summary}
	if h.issuances != nil {
		rec, err := h.issuances.GetLatestByUsername(c.Request.Context(), username)
		if err == nil {
			resp.Issuance = rec
		} else if !errors.Is(err, repository.ErrIssuanceNotFound) {
			RespondError(c, http.StatusInternalServerError, "database_error", "Failed to read issuance record")
			return
		}
	}

	RespondSuccess(c, resp)
}
