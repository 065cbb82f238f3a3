package service

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrReceiptTimeout      = errors.New("timed out waiting for transaction receipt")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrSubmitterClosed     = errors.New("submitter is closed")
)

// Stage names the step of a submission that failed.
type Stage string

const (
	StageNonce     Stage = "nonce"
	StageBuild     Stage = "build"
	StageSign      Stage = "sign"
	StageBroadcast Stage = "broadcast"
	StageReceipt   Stage = "receipt"
)

// SubmissionError reports a failed ledger write. Submissions are never
// retried here; the caller decides. TxHash is set once the transaction has
// been signed, so a timed-out transaction can still be looked up later.
type SubmissionError struct {
	Stage  Stage
	TxHash common.Hash
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("submission failed at %s (tx %s): %v", e.Stage, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("submission failed at %s: %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RetrievalError reports a failed event query. It always accompanies an
// empty result.
type RetrievalError struct {
	FromBlock uint64
	ToBlock   *uint64
	Err       error
}

func (e *RetrievalError) Error() string {
	to := "latest"
	if e.ToBlock != nil {
		to = fmt.Sprintf("%d", *e.ToBlock)
	}
	return fmt.Sprintf("retrieve decisions in blocks %d..%s: %v", e.FromBlock, to, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
