package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/geocoder89/holocron/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	GetUser(ctx context.Context, id string) (user.User, error)
	RevokeSession(ctx context.Context, userID string) error
}

type UsersHandler struct {
	svc UserService
	log *slog.Logger
}

func NewUsersHandler(svc UserService, log *slog.Logger) *UsersHandler {
	return &UsersHandler{svc: svc, log: log}
}

// Me returns the caller's own account.
func (h *UsersHandler) Me(ctx *gin.Context) {
	caller, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondAuthError(ctx, h.log, auth.ErrNoToken)
		return
	}

	u, err := h.svc.GetUser(ctx.Request.Context(), caller.UserID)
	if err != nil {
		RespondAuthError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"id":        u.ID,
		"email":     u.Email,
		"role":      u.Role,
		"createdAt": u.CreatedAt,
	})
}

// RevokeSession force-logs-out the user named in the path. Admin only.
func (h *UsersHandler) RevokeSession(ctx *gin.Context) {
	actor, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondAuthError(ctx, h.log, auth.ErrNoToken)
		return
	}

	target := ctx.Param("id")

	if err := h.svc.RevokeSession(ctx.Request.Context(), target); err != nil {
		RespondAuthError(ctx, h.log, err)
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "admin revoked session", "actor_id", actor.UserID, "actor_email", actor.Email, "user_id", target)

	ctx.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}
