package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/aidecisionlog/server/internal/db"
	"github.com/aidecisionlog/server/internal/decisionlog/digest"
	"github.com/aidecisionlog/server/internal/decisionlog/store"
)

type JournalStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewJournalStore(db *sql.DB, writer *dbpkg.Worker) *JournalStore {
	return &JournalStore{db: db, writer: writer}
}

func (s *JournalStore) RecordSubmission(ctx context.Context, rec store.SubmissionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("RecordSubmission: id is required")
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}

	var recordHash any
	if !rec.RecordDigest.IsZero() {
		recordHash = rec.RecordDigest[:]
	}

	var txHash any
	if rec.TxHash != "" {
		txHash = rec.TxHash
	}

	var block any
	if rec.BlockNumber != nil {
		block = int64(*rec.BlockNumber)
	}

	var stage, errMsg any
	if rec.FailedStage != "" {
		stage = rec.FailedStage
	}
	if rec.Error != "" {
		errMsg = rec.Error
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO submissions(
  submission_id, agent_id, action, reason_hash, record_hash, record_timestamp,
  status, tx_hash, block_number, failed_stage, error,
  submitted_at_ms, completed_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.AgentID, rec.Action, rec.ReasonDigest[:], recordHash, rec.RecordTimestamp,
			string(rec.Status), txHash, block, stage, errMsg,
			rec.SubmittedAt.UTC().UnixMilli(), rec.CompletedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordSubmission insert: %w", err)
		}
		return nil
	})
}

func (s *JournalStore) ListSubmissions(ctx context.Context, limit int) ([]store.SubmissionRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT submission_id, agent_id, action, reason_hash, record_hash, record_timestamp,
       status, tx_hash, block_number, failed_stage, error,
       submitted_at_ms, completed_at_ms
FROM submissions
ORDER BY seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListSubmissions query: %w", err)
	}
	defer rows.Close()

	var out []store.SubmissionRecord
	for rows.Next() {
		var (
			rec         store.SubmissionRecord
			reasonHash  []byte
			recordHash  []byte
			status      string
			txHash      sql.NullString
			block       sql.NullInt64
			stage       sql.NullString
			errMsg      sql.NullString
			submittedMs int64
			completedMs int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.AgentID, &rec.Action, &reasonHash, &recordHash, &rec.RecordTimestamp,
			&status, &txHash, &block, &stage, &errMsg,
			&submittedMs, &completedMs,
		); err != nil {
			return nil, fmt.Errorf("ListSubmissions scan: %w", err)
		}

		if len(reasonHash) != digest.Size {
			return nil, fmt.Errorf("ListSubmissions: submission %s has a %d-byte reason_hash", rec.ID, len(reasonHash))
		}
		copy(rec.ReasonDigest[:], reasonHash)
		if len(recordHash) == digest.Size {
			copy(rec.RecordDigest[:], recordHash)
		}

		rec.Status = store.SubmissionStatus(status)
		rec.TxHash = txHash.String
		if block.Valid {
			b := uint64(block.Int64)
			rec.BlockNumber = &b
		}
		rec.FailedStage = stage.String
		rec.Error = errMsg.String
		rec.SubmittedAt = time.UnixMilli(submittedMs).UTC()
		rec.CompletedAt = time.UnixMilli(completedMs).UTC()

		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListSubmissions rows: %w", err)
	}
	return out, nil
}
