package store

import (
	"context"
	"time"

	"github.com/aidecisionlog/server/internal/decisionlog/digest"
)

type SubmissionStatus string

const (
	StatusConfirmed SubmissionStatus = "confirmed"
	StatusFailed    SubmissionStatus = "failed"
)

// SubmissionRecord captures one submission attempt for the local journal.
// The reason text is never part of it; ReasonDigest is what was committed
// and RecordDigest binds the whole canonical record.
type SubmissionRecord struct {
	ID              string           `json:"id"`
	AgentID         string           `json:"agent_id"`
	Action          string           `json:"action"`
	ReasonDigest    digest.Digest    `json:"reason_hash"`
	RecordDigest    digest.Digest    `json:"record_hash"`
	RecordTimestamp string           `json:"record_timestamp"`
	Status          SubmissionStatus `json:"status"`
	TxHash          string           `json:"tx_hash,omitempty"`
	BlockNumber     *uint64          `json:"block_number,omitempty"`
	FailedStage     string           `json:"failed_stage,omitempty"`
	Error           string           `json:"error,omitempty"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	CompletedAt     time.Time        `json:"completed_at"`
}

// JournalStore persists submission attempts as an append-only log.
type JournalStore interface {
	RecordSubmission(ctx context.Context, rec SubmissionRecord) error
	// ListSubmissions returns up to limit records, newest first.
	ListSubmissions(ctx context.Context, limit int) ([]SubmissionRecord, error)
}
