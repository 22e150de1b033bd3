package audit

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Chain links entries into a keyed hash chain. Each hash covers the previous
// hash and every field of the entry, so editing, deleting or reordering a
// persisted entry breaks verification from that point on.
type Chain struct {
	key []byte
}

// NewChain creates a chain. An empty key yields an unkeyed chain.
func NewChain(key []byte) (*Chain, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("audit chain key must be at most %d bytes", blake2b.Size)
	}
	return &Chain{key: key}, nil
}

// Seal assigns the sequence number and chain hashes. It matches SealFunc.
func (c *Chain) Seal(prevHash string, seq int64, e Entry) Entry {
	e.Seq = seq
	e.PrevHash = prevHash
	e.Hash = c.digest(e)
	return e
}

func (c *Chain) digest(e Entry) string {
	h, _ := blake2b.New256(c.key)
	field := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0x1f})
	}
	field(e.PrevHash)
	field(strconv.FormatInt(e.Seq, 10))
	field(e.EntryID)
	field(e.Timestamp.UTC().Format(time.RFC3339Nano))
	field(e.AccountID.String())
	field(string(e.SubjectType))
	field(string(e.Action))
	field(string(e.Decision))
	field(e.Reason)
	field(e.CorrelationID)
	field(e.RequestedAmount.String())
	field(e.ReservedAmount.String())
	field(e.Headroom.String())
	field(e.PolicyVersion)
	field(e.PolicyHash)
	field(e.OverdraftRequestID.String())
	field(e.ReservationID.String())
	field(e.NotificationID.String())
	field(e.Actor)
	field(strconv.FormatBool(e.Simulated))
	return hex.EncodeToString(h.Sum(nil))
}

// BrokenChainError identifies the first entry that fails verification.
type BrokenChainError struct {
	Seq    int64
	Reason string
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("audit chain broken at seq %d: %s", e.Seq, e.Reason)
}

// Verify checks a contiguous run of entries that follows prevHash/prevSeq.
// It returns the hash and seq of the last verified entry so callers can
// verify a long chain page by page.
func (c *Chain) Verify(prevHash string, prevSeq int64, entries []Entry) (string, int64, error) {
	for _, e := range entries {
		if e.Seq != prevSeq+1 {
			return prevHash, prevSeq, &BrokenChainError{Seq: e.Seq, Reason: fmt.Sprintf("expected seq %d", prevSeq+1)}
		}
		if e.PrevHash != prevHash {
			return prevHash, prevSeq, &BrokenChainError{Seq: e.Seq, Reason: "previous hash mismatch"}
		}
		if c.digest(e) != e.Hash {
			return prevHash, prevSeq, &BrokenChainError{Seq: e.Seq, Reason: "entry hash mismatch"}
		}
		prevHash, prevSeq = e.Hash, e.Seq
	}
	return prevHash, prevSeq, nil
}
