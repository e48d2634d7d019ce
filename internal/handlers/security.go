package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
	"github.com/mithaqapp/mithaq/internal/middleware"
	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/internal/services"
	appErrors "github.com/mithaqapp/mithaq/pkg/errors"
	"github.com/mithaqapp/mithaq/pkg/response"
)

// SecurityHandler exposes two-factor settings and trusted device management
// for the signed-in user.
type SecurityHandler struct {
	twoFactor *services.TwoFactorService
	devices   *services.TrustedDeviceService
}

func NewSecurityHandler(twoFactor *services.TwoFactorService, devices *services.TrustedDeviceService) *SecurityHandler {
	return &SecurityHandler{twoFactor: twoFactor, devices: devices}
}

type confirmRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *SecurityHandler) settingsRequest(c *gin.Context) services.SettingsRequest {
	return services.SettingsRequest{
		UserID:    middleware.UserID(c),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// POST /api/security/two-factor/enable
func (h *SecurityHandler) BeginEnable(c *gin.Context) {
	result, err := h.twoFactor.BeginEnable(c.Request.Context(), h.settingsRequest(c))
	if err != nil {
		response.Error(c, mapSettingsError(err))
		return
	}
	response.Success(c, http.StatusAccepted, issuePayload(result))
}

// POST /api/security/two-factor/enable/confirm
func (h *SecurityHandler) ConfirmEnable(c *gin.Context) {
	var req confirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.twoFactor.ConfirmEnable(c.Request.Context(), h.settingsRequest(c), req.Code); err != nil {
		response.Error(c, mapSettingsError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"two_factor_enabled": true})
}

// POST /api/security/two-factor/disable
func (h *SecurityHandler) BeginDisable(c *gin.Context) {
	result, err := h.twoFactor.BeginDisable(c.Request.Context(), h.settingsRequest(c))
	if err != nil {
		response.Error(c, mapSettingsError(err))
		return
	}
	response.Success(c, http.StatusAccepted, issuePayload(result))
}

// POST /api/security/two-factor/disable/confirm
func (h *SecurityHandler) ConfirmDisable(c *gin.Context) {
	var req confirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.twoFactor.ConfirmDisable(c.Request.Context(), h.settingsRequest(c), req.Code); err != nil {
		response.Error(c, mapSettingsError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"two_factor_enabled": false})
}

// GET /api/security/devices
func (h *SecurityHandler) ListDevices(c *gin.Context) {
	devices, err := h.devices.List(middleware.UserID(c))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "failed to list devices"))
		return
	}

	payload := make([]gin.H, 0, len(devices))
	now := time.Now()
	for i := range devices {
		payload = append(payload, devicePayload(&devices[i], now))
	}
	response.Success(c, http.StatusOK, gin.H{"devices": payload})
}

// DELETE /api/security/devices/:id
func (h *SecurityHandler) RevokeDevice(c *gin.Context) {
	err := h.devices.Revoke(middleware.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.Wrap(err, "failed to revoke device"))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// DELETE /api/security/devices
func (h *SecurityHandler) RevokeAllDevices(c *gin.Context) {
	revoked, err := h.devices.RevokeAll(middleware.UserID(c))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "failed to revoke devices"))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}

func issuePayload(result *twofactor.IssueResult) gin.H {
	return gin.H{
		"code_sent":   true,
		"expires_at":  result.ExpiresAt.UTC().Format(time.RFC3339),
		"daily_used":  result.DailyUsed,
		"daily_limit": result.DailyLimit,
	}
}

func devicePayload(device *models.TrustedDevice, now time.Time) gin.H {
	return gin.H{
		"id":           device.ID,
		"label":        device.Label,
		"last_seen_at": device.LastSeenAt,
		"last_seen_ip": device.LastSeenIP,
		"expires_at":   device.ExpiresAt,
		"active":       device.Active(now),
	}
}

func mapSettingsError(err error) error {
	var limited *twofactor.RateLimitedError
	if errors.As(err, &limited) {
		base := appErrors.ErrCodeTooSoon
		if limited.Decision.Reason == twofactor.ReasonQuotaExceeded {
			base = appErrors.ErrCodeQuotaExceeded
		}
		return base.WithMessage(limited.Decision.Message)
	}

	switch {
	case errors.Is(err, services.ErrTwoFactorAlreadyEnabled):
		return appErrors.NewBadRequest("two-factor authentication is already enabled")
	case errors.Is(err, services.ErrTwoFactorNotEnabled):
		return appErrors.NewBadRequest("two-factor authentication is not enabled")
	case errors.Is(err, twofactor.ErrInvalidCode):
		return appErrors.ErrCodeInvalid
	case errors.Is(err, twofactor.ErrDeliveryFailed):
		return appErrors.ErrCodeDeliveryFailed
	case errors.Is(err, twofactor.ErrStoreFailed):
		return appErrors.ErrCodeStoreFailed
	default:
		return appErrors.FromError(err)
	}
}
