package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"guardrail/internal/guardrail"
	"guardrail/internal/guardrail/handler/mocks"
	"guardrail/internal/minor"
	"guardrail/internal/overdraft"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/testutil"
)

// Justification for unit tests: the handlers own request parsing, reviewer
// identity checks and the mapping of decision variants onto the wire shape.
// The engine is mocked so each mapping is asserted in isolation.
type HandlerSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	service       *mocks.MockService
	notifications *mocks.MockNotifications
	router        chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.notifications = mocks.NewMockNotifications(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.service, s.notifications, logger)
	s.router = chi.NewRouter()
	h.RegisterSubmission(s.router)
	h.RegisterReview(s.router)
	h.RegisterCompliance(s.router)
	h.RegisterNotifications(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

var (
	accountID = domain.AccountID(uuid.MustParse("7f1c0c4e-5a1e-4a53-9c55-1d1a0e2b9c01"))
	requestID = domain.OverdraftRequestID(uuid.MustParse("0b8a2f54-61c3-4f36-8f0e-9f7d8a1c2e03"))
	fixedNow  = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

// =============================================================================
// Evaluate
// =============================================================================

func (s *HandlerSuite) TestEvaluate() {
	t := s.T()

	s.Run("allow carries the reservation", func() {
		resID := domain.NewReservationID()
		s.service.EXPECT().
			Evaluate(gomock.Any(), accountID, decimal.RequireFromString("25.50"), "corr-1").
			Return(guardrail.Allow{
				Correlation: "corr-1",
				Reservation: usage.Reservation{ID: resID, AccountID: accountID, Amount: decimal.RequireFromString("25.50")},
				Headroom:    usage.Headroom{Total: decimal.NewFromInt(74)},
			}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/guardrail/evaluations", map[string]string{
			"account_id":     accountID.String(),
			"amount":         "25.50",
			"correlation_id": "corr-1",
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[EvaluateResponse](t, rr)
		s.Equal(guardrail.KindAllow, resp.Decision)
		s.Equal("corr-1", resp.CorrelationID)
		s.Require().NotNil(resp.ReservationID)
		s.Equal(resID, *resp.ReservationID)
		s.Nil(resp.OverdraftRequestID)
	})

	s.Run("deny carries the reason", func() {
		s.service.EXPECT().
			Evaluate(gomock.Any(), accountID, gomock.Any(), "corr-2").
			Return(guardrail.Deny{Correlation: "corr-2", Reason: guardrail.ReasonLimitExceeded}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/guardrail/evaluations", map[string]string{
			"account_id":     accountID.String(),
			"amount":         "500",
			"correlation_id": "corr-2",
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[EvaluateResponse](t, rr)
		s.Equal(guardrail.KindDeny, resp.Decision)
		s.Equal("LimitExceeded", resp.Reason)
		s.Nil(resp.ReservationID)
	})

	s.Run("pending overdraft carries the request id", func() {
		s.service.EXPECT().
			Evaluate(gomock.Any(), accountID, gomock.Any(), "corr-3").
			Return(guardrail.PendingOverdraft{
				Correlation:     "corr-3",
				RequestID:       requestID,
				State:           overdraft.StateUnderReview,
				RequestedAmount: decimal.NewFromInt(20),
				ExtensionAmount: decimal.NewFromInt(20),
			}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/guardrail/evaluations", map[string]string{
			"account_id":     accountID.String(),
			"amount":         "20",
			"correlation_id": "corr-3",
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[EvaluateResponse](t, rr)
		s.Equal(guardrail.KindPendingOverdraft, resp.Decision)
		s.Require().NotNil(resp.OverdraftRequestID)
		s.Equal(requestID, *resp.OverdraftRequestID)
		s.Equal(string(overdraft.StateUnderReview), resp.OverdraftState)
	})

	s.Run("engine failure maps to 503", func() {
		s.service.EXPECT().
			Evaluate(gomock.Any(), accountID, gomock.Any(), "corr-4").
			Return(nil, dErrors.New(dErrors.CodeEngineUnavailable, "audit trail unavailable"))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/guardrail/evaluations", map[string]string{
			"account_id":     accountID.String(),
			"amount":         "20",
			"correlation_id": "corr-4",
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, dErrors.CodeEngineUnavailable)
	})
}

func (s *HandlerSuite) TestEvaluate_InvalidInput() {
	t := s.T()
	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing correlation id", map[string]string{"account_id": accountID.String(), "amount": "10"}},
		{"malformed account id", map[string]string{"account_id": "acct-1", "amount": "10", "correlation_id": "c"}},
		{"negative amount", map[string]string{"account_id": accountID.String(), "amount": "-1", "correlation_id": "c"}},
		{"too many decimals", map[string]string{"account_id": accountID.String(), "amount": "1.001", "correlation_id": "c"}},
		{"unknown field", map[string]string{"account_id": accountID.String(), "amount": "1", "correlation_id": "c", "tier": "gold"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/guardrail/evaluations", tc.body)
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

// =============================================================================
// Release and headroom
// =============================================================================

func (s *HandlerSuite) TestRelease() {
	t := s.T()
	resID := domain.NewReservationID()

	s.Run("body is optional", func() {
		released := fixedNow
		s.service.EXPECT().Release(gomock.Any(), resID, "").
			Return(usage.Reservation{ID: resID, AccountID: accountID, Amount: decimal.NewFromInt(5), ReleasedAt: &released}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodPost, "/v1/guardrail/reservations/"+resID.String()+"/release"))

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[ReservationResponse](t, rr)
		s.Equal(resID, resp.ID)
		s.NotNil(resp.ReleasedAt)
	})

	s.Run("second release conflicts", func() {
		s.service.EXPECT().Release(gomock.Any(), resID, "refund-9").
			Return(usage.Reservation{}, dErrors.New(dErrors.CodeAlreadyReleased, "reservation already released"))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/guardrail/reservations/"+resID.String()+"/release",
			map[string]string{"correlation_id": "refund-9"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusConflict, dErrors.CodeAlreadyReleased)
	})

	s.Run("malformed id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodPost, "/v1/guardrail/reservations/nope/release"))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestHeadroom() {
	t := s.T()
	s.service.EXPECT().Headroom(gomock.Any(), accountID).Return(guardrail.HeadroomReport{
		AccountID:     accountID,
		PolicyVersion: "2026-01",
		DailyCap:      decimal.NewFromInt(100),
		Usage:         usage.Headroom{Total: decimal.NewFromInt(10)},
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/v1/guardrail/accounts/"+accountID.String()+"/headroom"))

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "policy_version", "2026-01")
	testutil.AssertJSONContains(t, rr, "daily_cap", "100")
}

// =============================================================================
// Overdraft review
// =============================================================================

func (s *HandlerSuite) TestDecideOverdraft() {
	t := s.T()
	path := "/v1/admin/overdrafts/" + requestID.String() + "/decision"

	testutil.Given(t, "an authenticated reviewer", func(t *testing.T) {
		testutil.When(t, "they deny the request", func(t *testing.T) {
			decided := fixedNow
			s.service.EXPECT().
				DecideOverdraft(gomock.Any(), requestID, false, "rev-1", "not this week").
				Return(&overdraft.Request{ID: requestID, State: overdraft.StateDenied, DecidedBy: "rev-1", DecidedAt: &decided}, nil)

			req := testutil.NewJSONRequest(t, http.MethodPost, path, map[string]string{"decision": "deny", "note": "not this week"})
			rr := testutil.DoRequest(s.router, testutil.WithReviewer(req, "rev-1"))

			testutil.Then(t, "the denied request is returned", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "state", string(overdraft.StateDenied))
				testutil.AssertJSONContains(t, rr, "decided_by", "rev-1")
			})
		})

		testutil.When(t, "the request was already decided", func(t *testing.T) {
			s.service.EXPECT().
				DecideOverdraft(gomock.Any(), requestID, true, "rev-1", "").
				Return(nil, dErrors.New(dErrors.CodeAlreadyDecided, "overdraft request already decided"))

			req := testutil.NewJSONRequest(t, http.MethodPost, path, map[string]string{"decision": "approve"})
			rr := testutil.DoRequest(s.router, testutil.WithReviewer(req, "rev-1"))

			testutil.Then(t, "the call conflicts", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusConflict, dErrors.CodeAlreadyDecided)
			})
		})
	})

	testutil.Given(t, "no reviewer on the request", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, path, map[string]string{"decision": "approve"})
		rr := testutil.DoRequest(s.router, req)

		testutil.Then(t, "it is rejected before reaching the engine", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		})
	})

	testutil.Given(t, "an unknown decision verb", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, path, map[string]string{"decision": "maybe"})
		rr := testutil.DoRequest(s.router, testutil.WithReviewer(req, "rev-1"))

		testutil.Then(t, "it is a validation error", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, dErrors.CodeValidation)
		})
	})
}

func (s *HandlerSuite) TestListOverdrafts() {
	t := s.T()
	s.service.EXPECT().
		ListOverdrafts(gomock.Any(), overdraft.ListFilter{
			AccountID: accountID,
			States:    []overdraft.State{overdraft.StateUnderReview, overdraft.StateActive},
			Limit:     10,
		}).
		Return([]*overdraft.Request{{ID: requestID, AccountID: accountID, State: overdraft.StateUnderReview}}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet,
		"/v1/admin/overdrafts?account_id="+accountID.String()+"&state=under_review,active&limit=10"))

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[map[string][]overdraft.Request](t, rr)
	s.Require().Len((*resp)["overdrafts"], 1)
	s.Equal(requestID, (*resp)["overdrafts"][0].ID)
}

func (s *HandlerSuite) TestOverdraftStats() {
	t := s.T()
	s.service.EXPECT().
		OverdraftStats(gomock.Any()).
		Return(overdraft.Stats{
			PendingReview: 2,
			Active:        1,
			TotalGranted:  decimal.NewFromInt(40),
			TotalConsumed: decimal.NewFromInt(31),
			AtRisk:        1,
			AlertLevels:   map[overdraft.AlertLevel]int{overdraft.AlertWarning: 1},
		}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/v1/admin/overdrafts/stats"))

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[overdraft.Stats](t, rr)
	s.Equal(2, resp.PendingReview)
	s.Equal(1, resp.AtRisk)
	s.True(decimal.NewFromInt(31).Equal(resp.TotalConsumed))
	s.Equal(1, resp.AlertLevels[overdraft.AlertWarning])
}

// =============================================================================
// Compliance export
// =============================================================================

func (s *HandlerSuite) TestQueryAudit() {
	t := s.T()

	s.Run("filter and cursor are passed through", func() {
		s.service.EXPECT().
			QueryAudit(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, f audit.Filter, p audit.PageRequest) (audit.Page, error) {
				assert.Equal(t, accountID, f.AccountID)
				assert.Equal(t, audit.SubjectLimitCheck, f.SubjectType)
				assert.Equal(t, audit.DecisionDeny, f.Decision)
				assert.Equal(t, fixedNow, f.From)
				assert.Equal(t, "abc", p.Cursor)
				return audit.Page{NextCursor: "def"}, nil
			})

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet,
			"/v1/compliance/audit?account_id="+accountID.String()+
				"&subject_type=limit_check&decision=deny&from=2026-03-14T09:30:00Z&cursor=abc"))

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[AuditPageResponse](t, rr)
		s.NotNil(resp.Entries)
		s.Empty(resp.Entries)
		s.Equal("def", resp.NextCursor)
	})

	s.Run("unknown decision is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/v1/compliance/audit?decision=maybe"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, dErrors.CodeValidation)
	})

	s.Run("bad timestamp is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/v1/compliance/audit?from=yesterday"))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

// =============================================================================
// Guardian notifications
// =============================================================================

func (s *HandlerSuite) TestNotifications() {
	t := s.T()
	notificationID := domain.NewNotificationID()

	s.Run("unread inbox", func() {
		s.notifications.EXPECT().
			List(gomock.Any(), minor.ListFilter{MinorAccountID: accountID, UnreadOnly: true}).
			Return([]*minor.Notification{{
				ID:             notificationID,
				MinorAccountID: accountID,
				Trigger:        minor.TriggerLimitReached,
				Amount:         decimal.NewFromInt(12),
				DedupKey:       "internal",
			}}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet,
			"/v1/minors/"+accountID.String()+"/notifications?unread=true"))

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[map[string][]NotificationResponse](t, rr)
		list := (*resp)["notifications"]
		require.Len(t, list, 1)
		s.Equal(notificationID, list[0].ID)
		s.Nil(list[0].GuardianAccountID)
		s.NotContains(rr.Body.String(), "internal")
	})

	s.Run("acknowledge uses the request clock", func() {
		s.notifications.EXPECT().
			Acknowledge(gomock.Any(), notificationID, fixedNow).
			Return(&minor.Notification{ID: notificationID, Acknowledged: true, AcknowledgedAt: &fixedNow}, nil)

		req := testutil.NewRequest(t, http.MethodPost, "/v1/minors/notifications/"+notificationID.String()+"/ack")
		rr := testutil.DoRequest(s.router, testutil.WithRequestTime(req, fixedNow))

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "acknowledged", true)
	})

	s.Run("unknown notification", func() {
		s.notifications.EXPECT().
			Acknowledge(gomock.Any(), notificationID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "notification not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodPost,
			"/v1/minors/notifications/"+notificationID.String()+"/ack"))

		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, dErrors.CodeNotFound)
	})
}
