package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "guardrail/pkg/domain-errors"
	"guardrail/pkg/platform/httputil"
	"guardrail/pkg/requestcontext"
)

// ReviewerValidator resolves a bearer token to a reviewer id.
type ReviewerValidator interface {
	ValidateReviewer(tokenString string) (string, error)
}

// RequireReviewer authenticates overdraft reviewers and stores their id in
// the request context.
func RequireReviewer(validator ReviewerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}

			reviewerID, err := validator.ValidateReviewer(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized review attempt",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithReviewerID(ctx, reviewerID)))
		})
	}
}
