// Package record builds decision records: what an agent did, why, and when.
package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/aidecisionlog/server/internal/decisionlog/digest"
)

// TimestampLayout is ISO-8601 in UTC with microsecond precision and a
// trailing zone marker, e.g. 2026-10-16T09:30:00.123456Z.
const TimestampLayout = "2006-01-02T15:04:05.999999Z07:00"

// Input is a decision as submitted by a caller. A nil Timestamp asks New to
// stamp the record with the current time.
type Input struct {
	AgentID   string  `json:"agent_id"`
	Action    string  `json:"action"`
	Reason    string  `json:"reason"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// Record is a validated decision. Reason is the justification that gets
// committed by digest; it never leaves the process verbatim.
type Record struct {
	AgentID   string `json:"agent_id"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// New validates in and returns a Record. The timestamp is assigned here and
// only here: a caller-supplied value is kept unchanged, otherwise now is
// formatted in UTC.
func New(in Input, now time.Time) (Record, error) {
	if strings.TrimSpace(in.AgentID) == "" {
		return Record{}, missing("agent_id")
	}
	if strings.TrimSpace(in.Action) == "" {
		return Record{}, missing("action")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Record{}, missing("reason")
	}

	ts := FormatTimestamp(now)
	if in.Timestamp != nil {
		ts = *in.Timestamp
	}

	return Record{
		AgentID:   in.AgentID,
		Action:    in.Action,
		Reason:    in.Reason,
		Timestamp: ts,
	}, nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ReasonDigest is the value committed to the ledger for this record.
func (r Record) ReasonDigest() digest.Digest {
	return digest.Of(r.Reason)
}

// Canonical returns the RFC 8785 encoding of the record: sorted keys, no
// insignificant whitespace, no HTML escaping.
func (r Record) Canonical() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("record canonicalize: %w", err)
	}
	return out, nil
}

// CanonicalDigest is the Keccak-256 digest of Canonical. It binds agent,
// action, reason and timestamp together, unlike ReasonDigest.
func (r Record) CanonicalDigest() (digest.Digest, error) {
	b, err := r.Canonical()
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.OfBytes(b), nil
}
