package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"guardrail/internal/guardrail"
	"guardrail/internal/minor"
	"guardrail/internal/overdraft"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/httputil"
	"guardrail/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Notifications

// Service defines the guardrail operations exposed over HTTP.
type Service interface {
	Evaluate(ctx context.Context, accountID domain.AccountID, amount decimal.Decimal, correlationID string) (guardrail.Decision, error)
	Release(ctx context.Context, id domain.ReservationID, correlationID string) (usage.Reservation, error)
	Headroom(ctx context.Context, accountID domain.AccountID) (guardrail.HeadroomReport, error)
	DecideOverdraft(ctx context.Context, requestID domain.OverdraftRequestID, approve bool, reviewerID, note string) (*overdraft.Request, error)
	GetOverdraft(ctx context.Context, id domain.OverdraftRequestID) (*overdraft.Request, error)
	ListOverdrafts(ctx context.Context, filter overdraft.ListFilter) ([]*overdraft.Request, error)
	OverdraftStats(ctx context.Context) (overdraft.Stats, error)
	QueryAudit(ctx context.Context, filter audit.Filter, page audit.PageRequest) (audit.Page, error)
}

// Notifications defines the guardian notification inbox operations.
type Notifications interface {
	List(ctx context.Context, filter minor.ListFilter) ([]*minor.Notification, error)
	Acknowledge(ctx context.Context, id domain.NotificationID, at time.Time) (*minor.Notification, error)
}

// Handler wires guardrail endpoints to the engine.
type Handler struct {
	service       Service
	notifications Notifications
	logger        *slog.Logger
}

// New constructs a guardrail handler with its dependencies.
func New(service Service, notifications Notifications, logger *slog.Logger) *Handler {
	return &Handler{
		service:       service,
		notifications: notifications,
		logger:        logger,
	}
}

// RegisterSubmission mounts the endpoints used by the investment submission path.
func (h *Handler) RegisterSubmission(r chi.Router) {
	r.Post("/v1/guardrail/evaluations", h.HandleEvaluate)
	r.Post("/v1/guardrail/reservations/{id}/release", h.HandleRelease)
	r.Get("/v1/guardrail/accounts/{id}/headroom", h.HandleHeadroom)
}

// RegisterReview mounts the overdraft review endpoints. The caller installs
// reviewer authentication on r.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Get("/v1/admin/overdrafts", h.HandleListOverdrafts)
	r.Get("/v1/admin/overdrafts/stats", h.HandleOverdraftStats)
	r.Get("/v1/admin/overdrafts/{id}", h.HandleGetOverdraft)
	r.Post("/v1/admin/overdrafts/{id}/decision", h.HandleDecideOverdraft)
}

// RegisterCompliance mounts the audit export endpoint.
func (h *Handler) RegisterCompliance(r chi.Router) {
	r.Get("/v1/compliance/audit", h.HandleQueryAudit)
}

// RegisterNotifications mounts the guardian notification inbox.
func (h *Handler) RegisterNotifications(r chi.Router) {
	r.Get("/v1/minors/{id}/notifications", h.HandleListNotifications)
	r.Post("/v1/minors/notifications/{id}/ack", h.HandleAcknowledge)
}

// HandleEvaluate handles POST /v1/guardrail/evaluations.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req EvaluateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid evaluate request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	decision, err := h.service.Evaluate(ctx, req.parsedAccountID, req.parsedAmount, req.CorrelationID)
	if err != nil {
		h.logger.ErrorContext(ctx, "guardrail evaluation failed",
			"request_id", requestID,
			"account_id", req.parsedAccountID,
			"correlation_id", req.CorrelationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDecision(decision))
}

// HandleRelease handles POST /v1/guardrail/reservations/{id}/release.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req ReleaseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Release(ctx, id, req.CorrelationID)
	if err != nil {
		h.logger.WarnContext(ctx, "reservation release failed",
			"request_id", requestcontext.RequestID(ctx),
			"reservation_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromReservation(res))
}

// HandleHeadroom handles GET /v1/guardrail/accounts/{id}/headroom.
func (h *Handler) HandleHeadroom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.Headroom(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleListOverdrafts handles GET /v1/admin/overdrafts.
func (h *Handler) HandleListOverdrafts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOverdraftFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.service.ListOverdrafts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"overdrafts": reqs})
}

// HandleOverdraftStats handles GET /v1/admin/overdrafts/stats.
func (h *Handler) HandleOverdraftStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.OverdraftStats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleGetOverdraft handles GET /v1/admin/overdrafts/{id}.
func (h *Handler) HandleGetOverdraft(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseOverdraftRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.service.GetOverdraft(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// HandleDecideOverdraft handles POST /v1/admin/overdrafts/{id}/decision.
func (h *Handler) HandleDecideOverdraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reviewerID := requestcontext.ReviewerID(ctx)
	if reviewerID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "reviewer authentication required"))
		return
	}
	id, err := domain.ParseOverdraftRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req DecisionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	decided, err := h.service.DecideOverdraft(ctx, id, req.approve, reviewerID, req.Note)
	if err != nil {
		h.logger.WarnContext(ctx, "overdraft decision rejected",
			"request_id", requestID,
			"overdraft_request_id", id,
			"reviewer_id", reviewerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "overdraft decision recorded",
		"request_id", requestID,
		"overdraft_request_id", id,
		"reviewer_id", reviewerID,
		"state", decided.State,
	)
	httputil.WriteJSON(w, http.StatusOK, decided)
}

// HandleQueryAudit handles GET /v1/compliance/audit.
func (h *Handler) HandleQueryAudit(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.QueryAudit(r.Context(), filter, page)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries := result.Entries
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, AuditPageResponse{
		Entries:    entries,
		NextCursor: result.NextCursor,
	})
}

// HandleListNotifications handles GET /v1/minors/{id}/notifications.
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.notifications.List(r.Context(), minor.ListFilter{
		MinorAccountID: id,
		UnreadOnly:     q.Get("unread") == "true",
		Limit:          limit,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, fromNotification(n))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

// HandleAcknowledge handles POST /v1/minors/notifications/{id}/ack.
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseNotificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	n, err := h.notifications.Acknowledge(ctx, id, requestcontext.Now(ctx).UTC())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromNotification(n))
}
