package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/mithaqapp/mithaq/internal/auth"
	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
	"github.com/mithaqapp/mithaq/internal/middleware"
	"github.com/mithaqapp/mithaq/internal/models"
	appErrors "github.com/mithaqapp/mithaq/pkg/errors"
	"github.com/mithaqapp/mithaq/pkg/response"
)

// AuthHandler manages authentication flows (login, second factor, refresh,
// logout, me).
type AuthHandler struct {
	db       *gorm.DB
	login    *iauth.LoginService
	sessions *iauth.SessionService
}

func NewAuthHandler(db *gorm.DB, login *iauth.LoginService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{db: db, login: login, sessions: sessions}
}

type loginRequest struct {
	Identifier      string `json:"identifier" validate:"required"`
	Password        string `json:"password" validate:"required"`
	DeviceSignature string `json:"device_signature"`
}

type verifyRequest struct {
	ChallengeToken  string `json:"challenge_token" validate:"required"`
	Code            string `json:"code" validate:"required,len=6,numeric"`
	SkipDeviceTrust bool   `json:"skip_device_trust"`
	DeviceLabel     string `json:"device_label" validate:"max=100"`
	DeviceSignature string `json:"device_signature"`
}

type resendRequest struct {
	ChallengeToken  string `json:"challenge_token" validate:"required"`
	DeviceSignature string `json:"device_signature"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.login.Login(c.Request.Context(), iauth.LoginInput{
		Identifier:      req.Identifier,
		Password:        req.Password,
		DeviceSignature: req.DeviceSignature,
		IPAddress:       c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, mapAuthError(err))
		return
	}

	if result.TwoFactorRequired {
		response.Success(c, http.StatusAccepted, pendingPayload(result))
		return
	}

	response.Success(c, http.StatusOK, completedPayload(result))
}

// POST /api/auth/two-factor/verify
func (h *AuthHandler) VerifyTwoFactor(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.login.CompleteTwoFactor(c.Request.Context(), iauth.CompleteInput{
		ChallengeToken:  req.ChallengeToken,
		Code:            req.Code,
		SkipDeviceTrust: req.SkipDeviceTrust,
		DeviceLabel:     req.DeviceLabel,
		DeviceSignature: req.DeviceSignature,
		IPAddress:       c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, mapAuthError(err))
		return
	}

	response.Success(c, http.StatusOK, completedPayload(result))
}

// POST /api/auth/two-factor/resend
func (h *AuthHandler) ResendCode(c *gin.Context) {
	var req resendRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.login.ResendCode(c.Request.Context(), req.ChallengeToken, req.DeviceSignature, c.ClientIP())
	if err != nil {
		response.Error(c, mapAuthError(err))
		return
	}

	response.Success(c, http.StatusAccepted, pendingPayload(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := middleware.SessionID(c)
	if sid == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sid); err != nil {
		if errors.Is(err, iauth.ErrSessionNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		response.Error(c, appErrors.Wrap(err, "failed to revoke session"))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var user models.User
	if err := h.db.Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		response.Error(c, appErrors.Wrap(err, "failed to load profile"))
		return
	}

	response.Success(c, http.StatusOK, userPayload(&user))
}

// pendingPayload shapes the response for a login parked behind a second
// factor. The wait fields are structured so clients never parse the message.
func pendingPayload(result *iauth.LoginResult) gin.H {
	payload := gin.H{
		"two_factor_required": true,
		"challenge_token":     result.ChallengeToken,
		"destination":         result.Destination,
	}
	if result.Throttle != nil {
		payload["throttle"] = throttlePayload(*result.Throttle)
	}
	return payload
}

func completedPayload(result *iauth.LoginResult) gin.H {
	return gin.H{
		"two_factor_required": false,
		"tokens": tokenResponse{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
		},
		"user": userPayload(result.User),
	}
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":                 user.ID,
		"username":           user.Username,
		"email":              user.Email,
		"first_name":         user.FirstName,
		"last_name":          user.LastName,
		"two_factor_enabled": user.TwoFactorEnabled,
	}
}

func throttlePayload(decision twofactor.Decision) gin.H {
	return gin.H{
		"reason":       string(decision.Reason),
		"message":      decision.Message,
		"retry_at":     decision.RetryAt.UTC().Format(time.RFC3339),
		"wait_seconds": int(decision.Wait / time.Second),
		"daily_used":   decision.DailyUsed,
		"daily_limit":  decision.DailyLimit,
	}
}

// mapAuthError converts domain errors into caller-facing AppErrors. Invalid
// code states all collapse into one generic error on purpose.
func mapAuthError(err error) error {
	var limited *twofactor.RateLimitedError
	if errors.As(err, &limited) {
		base := appErrors.ErrCodeTooSoon
		if limited.Decision.Reason == twofactor.ReasonQuotaExceeded {
			base = appErrors.ErrCodeQuotaExceeded
		}
		return base.WithMessage(limited.Decision.Message)
	}

	switch {
	case errors.Is(err, iauth.ErrAccountLocked):
		return appErrors.ErrAccountLocked
	case errors.Is(err, iauth.ErrInvalidCredentials),
		errors.Is(err, iauth.ErrAccountDisabled):
		// Disabled accounts look identical to bad credentials from outside.
		return appErrors.ErrInvalidCredentials
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
