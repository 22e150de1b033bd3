package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "guardrail/pkg/domain-errors"
	"guardrail/pkg/requestcontext"
)

type staticValidator map[string]string

func (v staticValidator) ValidateReviewer(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", dErrors.New(dErrors.CodeUnauthorized, "invalid reviewer token")
}

func TestRequireReviewer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.ReviewerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := RequireReviewer(staticValidator{"good-token": "rev-7"}, logger)(next)

	tests := []struct {
		name         string
		header       string
		wantStatus   int
		wantReviewer string
	}{
		{name: "valid bearer token", header: "Bearer good-token", wantStatus: http.StatusNoContent, wantReviewer: "rev-7"},
		{name: "unknown token", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
		{name: "no header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good-token", wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/overdrafts/x/decision", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			mw.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantReviewer, seen)
		})
	}
}
