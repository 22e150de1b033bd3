package domain

import (
	"github.com/google/uuid"

	dErrors "guardrail/pkg/domain-errors"
)

// Typed identifiers. Distinct types keep an account id from being passed where
// an overdraft request id is expected.
type (
	AccountID          uuid.UUID
	OverdraftRequestID uuid.UUID
	ReservationID      uuid.UUID
	NotificationID     uuid.UUID
)

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}

func unmarshalUUID(text []byte, field string) (uuid.UUID, error) {
	if len(text) == 0 {
		return uuid.Nil, nil
	}
	return parseUUID(string(text), field)
}

func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account_id")
	return AccountID(u), err
}

func ParseOverdraftRequestID(s string) (OverdraftRequestID, error) {
	u, err := parseUUID(s, "overdraft_request_id")
	return OverdraftRequestID(u), err
}

func ParseReservationID(s string) (ReservationID, error) {
	u, err := parseUUID(s, "reservation_id")
	return ReservationID(u), err
}

func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID(s, "notification_id")
	return NotificationID(u), err
}

func NewOverdraftRequestID() OverdraftRequestID { return OverdraftRequestID(uuid.New()) }
func NewReservationID() ReservationID           { return ReservationID(uuid.New()) }
func NewNotificationID() NotificationID         { return NotificationID(uuid.New()) }

func (id AccountID) String() string          { return uuid.UUID(id).String() }
func (id OverdraftRequestID) String() string { return uuid.UUID(id).String() }
func (id ReservationID) String() string      { return uuid.UUID(id).String() }
func (id NotificationID) String() string     { return uuid.UUID(id).String() }

func (id AccountID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id OverdraftRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ReservationID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// An unset id marshals as "" so it round-trips through UnmarshalText.
func marshalUUID(u uuid.UUID) ([]byte, error) {
	if u == uuid.Nil {
		return []byte{}, nil
	}
	return []byte(u.String()), nil
}

func (id AccountID) MarshalText() ([]byte, error)          { return marshalUUID(uuid.UUID(id)) }
func (id OverdraftRequestID) MarshalText() ([]byte, error) { return marshalUUID(uuid.UUID(id)) }
func (id ReservationID) MarshalText() ([]byte, error)      { return marshalUUID(uuid.UUID(id)) }
func (id NotificationID) MarshalText() ([]byte, error)     { return marshalUUID(uuid.UUID(id)) }

func (id *AccountID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text, "account_id")
	*id = AccountID(u)
	return err
}

func (id *OverdraftRequestID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text, "overdraft_request_id")
	*id = OverdraftRequestID(u)
	return err
}

func (id *ReservationID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text, "reservation_id")
	*id = ReservationID(u)
	return err
}

func (id *NotificationID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text, "notification_id")
	*id = NotificationID(u)
	return err
}
