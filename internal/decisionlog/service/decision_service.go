package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/aidecisionlog/server/internal/decisionlog/digest"
	"github.com/aidecisionlog/server/internal/decisionlog/record"
	"github.com/aidecisionlog/server/internal/decisionlog/store"
	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

const MessageLogged = "Decision logged successfully."

// EntryReader is the read side of the ledger, satisfied by *Reader.
type EntryReader interface {
	FetchAll(ctx context.Context, fromBlock uint64, toBlock *uint64) ([]types.LedgerEntry, error)
}

// DecisionService ties record construction, ledger submission and the local
// journal together for the HTTP boundary and the CLI.
type DecisionService struct {
	committer Committer
	reader    EntryReader
	journal   store.JournalStore
	logger    *log.Logger

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

func NewDecisionService(c Committer, r EntryReader, j store.JournalStore, logger *log.Logger) *DecisionService {
	return &DecisionService{
		committer: c,
		reader:    r,
		journal:   j,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// WithClock replaces the time source.  Intended for tests.
func (s *DecisionService) WithClock(now func() time.Time) *DecisionService {
	s.now = now
	return s
}

// Log validates in, commits the digest of its reason and journals the
// attempt.  Validation failures return a *record.ValidationError before
// anything touches the ledger; submission failures return the
// *SubmissionError unchanged.
func (s *DecisionService) Log(ctx context.Context, in record.Input) (types.LogResponse, error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return types.LogResponse{}, ErrSubmitterClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	submittedAt := s.now()

	rec, err := record.New(in, submittedAt)
	if err != nil {
		return types.LogResponse{}, err
	}
	reasonDigest := rec.ReasonDigest()

	conf, err := s.committer.Submit(ctx, rec.AgentID, rec.Action, reasonDigest)
	if err != nil {
		s.journalFailure(ctx, rec, reasonDigest, submittedAt, err)
		return types.LogResponse{}, err
	}

	s.journalSuccess(ctx, rec, reasonDigest, submittedAt, conf)

	return types.LogResponse{
		Status:     "success",
		Message:    MessageLogged,
		TxHash:     conf.TxHash.Hex(),
		ReasonHash: reasonDigest,
		LoggedData: rec,
	}, nil
}

// Close refuses new Log calls and waits for in-flight ones, journal write
// included.  Call it before closing the journal.
func (s *DecisionService) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.inflight.Wait()
}

// Entries returns committed decisions in ledger order.  On a failed query
// the result is empty and the *RetrievalError is returned alongside it.
func (s *DecisionService) Entries(ctx context.Context, fromBlock uint64, toBlock *uint64) ([]types.LedgerEntry, error) {
	return s.reader.FetchAll(ctx, fromBlock, toBlock)
}

func (s *DecisionService) Verify(req types.VerifyRequest) types.VerifyResponse {
	v := Explain(req.Reason, req.ReasonHash)
	return types.VerifyResponse{
		Verified:       v.Verified,
		CalculatedHash: v.Calculated.Hex(),
		OnChainHash:    v.OnChain,
		Hints:          v.Hints,
	}
}

func (s *DecisionService) Submissions(ctx context.Context, limit int) ([]store.SubmissionRecord, error) {
	return s.journal.ListSubmissions(ctx, limit)
}

// ── Journal ──────────────────────────────────────────────────────────────────

// Journal writes never fail a submission: the ledger is the record of truth
// and the commitment has already happened (or failed) by the time we get here.

func (s *DecisionService) journalSuccess(ctx context.Context, rec record.Record, d digest.Digest, at time.Time, conf Confirmation) {
	block := conf.BlockNumber
	jr := s.baseJournal(rec, d, at)
	jr.Status = store.StatusConfirmed
	jr.TxHash = conf.TxHash.Hex()
	jr.BlockNumber = &block
	s.writeJournal(ctx, jr)
}

func (s *DecisionService) journalFailure(ctx context.Context, rec record.Record, d digest.Digest, at time.Time, err error) {
	jr := s.baseJournal(rec, d, at)
	jr.Status = store.StatusFailed
	jr.Error = err.Error()

	var se *SubmissionError
	if errors.As(err, &se) {
		jr.FailedStage = string(se.Stage)
		if se.TxHash != (common.Hash{}) {
			jr.TxHash = se.TxHash.Hex()
		}
	}
	s.writeJournal(ctx, jr)
}

func (s *DecisionService) baseJournal(rec record.Record, d digest.Digest, at time.Time) store.SubmissionRecord {
	jr := store.SubmissionRecord{
		ID:              s.newID(),
		AgentID:         rec.AgentID,
		Action:          rec.Action,
		ReasonDigest:    d,
		RecordTimestamp: rec.Timestamp,
		SubmittedAt:     at,
		CompletedAt:     s.now(),
	}
	if rd, err := rec.CanonicalDigest(); err == nil {
		jr.RecordDigest = rd
	}
	return jr
}

func (s *DecisionService) writeJournal(ctx context.Context, jr store.SubmissionRecord) {
	if s.journal == nil {
		return
	}
	// A cancelled request must not lose the journal line for a transaction
	// that was already broadcast.
	if err := s.journal.RecordSubmission(context.WithoutCancel(ctx), jr); err != nil {
		s.logger.Printf("journal write failed: id=%s agent=%s: %v", jr.ID, jr.AgentID, err)
	}
}
