package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/config"
	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/gin-gonic/gin"
)

const (
	RefreshCookieName = "refreshToken"
	refreshCookiePath = "/api/v1/auth"

	authTimeout = 5 * time.Second
)

type AuthService interface {
	Register(ctx context.Context, email, password, role string) (user.User, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Refresh(ctx context.Context, raw string) (auth.Session, error)
	Logout(ctx context.Context, raw string) error
}

// CookieOptions controls the refresh cookie. Secure is on in prod only so
// local development over plain http keeps working.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

type AuthHandler struct {
	svc     AuthService
	cookies CookieOptions
	log     *slog.Logger
}

func NewAuthHandler(svc AuthService, cookies CookieOptions, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:     svc,
		cookies: cookies,
		log:     log,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
	Role     string `json:"role" binding:"omitempty,oneof=user admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), authTimeout)
	defer cancel()

	u, err := h.svc.Register(cctx, req.Email, req.Password, req.Role)
	if err != nil {
		RespondAuthError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"email":   u.Email,
		"role":    u.Role,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), authTimeout)
	defer cancel()

	sess, err := h.svc.Login(cctx, req.Email, req.Password)
	if err != nil {
		RespondAuthError(ctx, h.log, err)
		return
	}

	h.setRefreshCookie(ctx, sess.RefreshToken)

	ctx.JSON(http.StatusOK, gin.H{
		"token": sess.AccessToken,
		"user":  sess.User.Public(),
	})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(RefreshCookieName)

	if err != nil || raw == "" {
		RespondAuthError(ctx, h.log, auth.ErrNoRefreshToken)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), authTimeout)
	defer cancel()

	sess, err := h.svc.Refresh(cctx, raw)
	if err != nil {
		// the presented cookie is dead either way
		if ae := auth.AsError(err); ae.Kind != auth.KindInternal {
			h.clearRefreshCookie(ctx)
		}
		RespondAuthError(ctx, h.log, err)
		return
	}

	h.setRefreshCookie(ctx, sess.RefreshToken)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": sess.AccessToken,
	})
}

// Logout always succeeds from the client's point of view.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, _ := ctx.Cookie(RefreshCookieName)

	if raw != "" {
		cctx, cancel := config.WithTimeout(ctx.Request.Context(), authTimeout)
		defer cancel()

		err := h.svc.Logout(cctx, raw)
		if err != nil {
			h.log.WarnContext(ctx.Request.Context(), "logout could not clear session", "request_id", requestIDFrom(ctx), "err", err)
		}
	}

	h.clearRefreshCookie(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string) {
	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		RefreshCookieName,
		raw,
		int(h.cookies.MaxAge.Seconds()),
		refreshCookiePath,
		"",
		h.cookies.Secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		RefreshCookieName,
		"",
		-1,
		refreshCookiePath,
		"",
		h.cookies.Secure,
		true,
	)
}
