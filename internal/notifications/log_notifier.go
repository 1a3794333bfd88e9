package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes alerts to the structured log. It stands in for a mail or
// webhook provider.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendSessionRevoked(ctx context.Context, in SessionRevokedInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.WarnContext(ctx, "security_alert.session_revoked",
		"user_id", in.UserID,
		"email", in.Email,
		"reason", in.Reason,
		"at", in.At,
	)
	return nil
}
