package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/internal/overdraft"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	pstrings "guardrail/pkg/platform/strings"
)

const maxCorrelationIDLength = 128

// EvaluateRequest is the body of POST /v1/guardrail/evaluations.
// Amount is a decimal string so no precision is lost in transit.
type EvaluateRequest struct {
	AccountID     string `json:"account_id"`
	Amount        string `json:"amount"`
	CorrelationID string `json:"correlation_id"`

	parsedAccountID domain.AccountID
	parsedAmount    decimal.Decimal
}

// Validate parses the request; it fails fast on oversized input.
func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CorrelationID = strings.TrimSpace(r.CorrelationID)
	if r.CorrelationID == "" {
		return dErrors.New(dErrors.CodeValidation, "correlation_id is required")
	}
	if len(r.CorrelationID) > maxCorrelationIDLength {
		return dErrors.New(dErrors.CodeValidation, "correlation_id must be at most 128 characters")
	}
	accountID, err := domain.ParseAccountID(strings.TrimSpace(r.AccountID))
	if err != nil {
		return err
	}
	amount, err := domain.ParseAmount(strings.TrimSpace(r.Amount))
	if err != nil {
		return err
	}
	r.parsedAccountID = accountID
	r.parsedAmount = amount
	return nil
}

// ReleaseRequest is the optional body of POST /v1/guardrail/reservations/{id}/release.
type ReleaseRequest struct {
	CorrelationID string `json:"correlation_id"`
}

// DecisionRequest is the body of POST /v1/admin/overdrafts/{id}/decision.
type DecisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`

	approve bool
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	switch strings.ToLower(strings.TrimSpace(r.Decision)) {
	case "approve":
		r.approve = true
	case "deny":
		r.approve = false
	default:
		return dErrors.New(dErrors.CodeValidation, "decision must be approve or deny")
	}
	if len(r.Note) > 1000 {
		return dErrors.New(dErrors.CodeValidation, "note must be at most 1000 characters")
	}
	return nil
}

func parseLimit(q url.Values) (int, error) {
	raw := q.Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer")
	}
	return n, nil
}

func parseTime(q url.Values, key string) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, key+" must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

// parseOverdraftFilter reads ?account_id=&state=a,b&limit= for the review queue.
func parseOverdraftFilter(q url.Values) (overdraft.ListFilter, error) {
	var filter overdraft.ListFilter
	if raw := q.Get("account_id"); raw != "" {
		id, err := domain.ParseAccountID(raw)
		if err != nil {
			return filter, err
		}
		filter.AccountID = id
	}
	for _, s := range pstrings.SplitListLower(q.Get("state")) {
		filter.States = append(filter.States, overdraft.State(s))
	}
	limit, err := parseLimit(q)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}

// parseAuditQuery reads the compliance export filter and page.
func parseAuditQuery(q url.Values) (audit.Filter, audit.PageRequest, error) {
	var (
		filter audit.Filter
		page   audit.PageRequest
	)
	if raw := q.Get("account_id"); raw != "" {
		id, err := domain.ParseAccountID(raw)
		if err != nil {
			return filter, page, err
		}
		filter.AccountID = id
	}
	if raw := q.Get("overdraft_request_id"); raw != "" {
		id, err := domain.ParseOverdraftRequestID(raw)
		if err != nil {
			return filter, page, err
		}
		filter.OverdraftRequestID = id
	}
	filter.CorrelationID = q.Get("correlation_id")

	switch st := audit.SubjectType(q.Get("subject_type")); st {
	case "", audit.SubjectLimitCheck, audit.SubjectOverdraft, audit.SubjectMinorNotification, audit.SubjectUsage:
		filter.SubjectType = st
	default:
		return filter, page, dErrors.New(dErrors.CodeValidation, "unknown subject_type")
	}
	switch d := audit.Decision(q.Get("decision")); d {
	case audit.DecisionNone, audit.DecisionAllow, audit.DecisionDeny, audit.DecisionPending:
		filter.Decision = d
	default:
		return filter, page, dErrors.New(dErrors.CodeValidation, "unknown decision")
	}

	var err error
	if filter.From, err = parseTime(q, "from"); err != nil {
		return filter, page, err
	}
	if filter.To, err = parseTime(q, "to"); err != nil {
		return filter, page, err
	}
	if page.Limit, err = parseLimit(q); err != nil {
		return filter, page, err
	}
	page.Cursor = q.Get("cursor")
	return filter, page.Normalize(), nil
}
