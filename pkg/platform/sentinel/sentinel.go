package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a uniqueness constraint rejected the write
// - ErrExpired: grant or record is past its validity window
// - ErrAlreadyUsed: one-shot resource (reservation, decision) already consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrInsufficient: conditional increment rejected because a cap would be exceeded
// - ErrContention: lock or retry budget exhausted before the write could apply
// - ErrUnavailable: backing store temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrInsufficient = errors.New("insufficient headroom")
	ErrContention   = errors.New("contention")
	ErrUnavailable  = errors.New("unavailable")
)
