package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

// RespondAuthError renders a tagged auth error. Anything else is logged and
// becomes a generic 500 so internals never reach the client.
func RespondAuthError(ctx *gin.Context, log *slog.Logger, err error) {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		ae = auth.ErrInternal
	}

	if ae.Kind == auth.KindInternal {
		log.ErrorContext(ctx.Request.Context(), "request failed",
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
	}

	RespondError(ctx, ae.Status, ae.Code, ae.Message, nil)
}
