package testutil

import (
	"net/http"
	"time"

	"guardrail/pkg/requestcontext"
)

// WithReviewer adds an authenticated reviewer to the request context.
// This simulates what the reviewer auth middleware does.
func WithReviewer(req *http.Request, reviewerID string) *http.Request {
	return req.WithContext(requestcontext.WithReviewerID(req.Context(), reviewerID))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
