package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/points-ledger/internal/auth"
	"github.com/josh-kwaku/points-ledger/internal/handler"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

// Auth validates the bearer token and puts the caller's principal on the
// request context. The request logger is tagged with the caller's id and role.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{UserID: claims.UserID, Role: claims.Role})
			logger := logging.FromContext(ctx).With("user_id", claims.UserID, "role", claims.Role)
			ctx = logging.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
