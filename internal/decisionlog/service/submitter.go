package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aidecisionlog/server/internal/chain"
	"github.com/aidecisionlog/server/internal/decisionlog/digest"
)

// TxSigner signs on behalf of one account. Key custody is its concern.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error)
}

// Committer commits a reason digest to the ledger.
type Committer interface {
	Submit(ctx context.Context, agentID, action string, reasonDigest digest.Digest) (Confirmation, error)
}

// Confirmation identifies the mined transaction carrying a commitment.
type Confirmation struct {
	TxHash      common.Hash
	BlockNumber uint64
	Nonce       uint64
	GasUsed     uint64
}

// SubmitterConfig holds the fixed gas policy and the inclusion wait bounds.
type SubmitterConfig struct {
	GasLimit uint64
	GasPrice *big.Int

	// ReceiptTimeout bounds the wait for inclusion.  Defaults to 2 minutes.
	ReceiptTimeout time.Duration

	// PollInterval is how often the receipt is requested.  Defaults to 1s.
	PollInterval time.Duration
}

const (
	DefaultGasLimit       = 2_000_000
	DefaultReceiptTimeout = 2 * time.Minute
	DefaultPollInterval   = time.Second
)

// DefaultGasPrice is 50 gwei.
func DefaultGasPrice() *big.Int {
	return new(big.Int).Mul(big.NewInt(50), big.NewInt(1_000_000_000))
}

// Submitter turns a reason digest into a mined recordDecision transaction.
//
// Submit fetches the account nonce on every call and holds no lock. Two
// overlapping calls for the same account can pick the same nonce and one of
// them will be rejected; callers sharing an account must serialize, for
// example through SerialSubmitter.
type Submitter struct {
	net      chain.Network
	contract *chain.Contract
	signer   TxSigner
	cfg      SubmitterConfig
	logger   *log.Logger
	tracer   trace.Tracer
}

func NewSubmitter(net chain.Network, contract *chain.Contract, signer TxSigner, cfg SubmitterConfig, logger *log.Logger) *Submitter {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.GasPrice == nil || cfg.GasPrice.Sign() <= 0 {
		cfg.GasPrice = DefaultGasPrice()
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Submitter{
		net:      net,
		contract: contract,
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/aidecisionlog/server/internal/decisionlog/service"),
	}
}

// Submit runs nonce, build, sign, broadcast and receipt strictly in order.
// Either a Confirmation for a mined entry is returned, or a
// *SubmissionError and no entry was created by this call. A receipt timeout
// is the exception the ledger may still include the transaction later; the
// error then carries its hash.
func (s *Submitter) Submit(ctx context.Context, agentID, action string, reasonDigest digest.Digest) (conf Confirmation, err error) {
	ctx, span := s.tracer.Start(ctx, "decisionlog.submit",
		trace.WithAttributes(
			attribute.String("decision.agent_id", agentID),
			attribute.String("decision.action", action),
			attribute.String("decision.reason_hash", reasonDigest.Hex()),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	from := s.signer.Address()

	nonce, err := s.net.PendingNonceAt(ctx, from)
	if err != nil {
		return Confirmation{}, &SubmissionError{Stage: StageNonce, Err: err}
	}
	span.SetAttributes(attribute.Int64("tx.nonce", int64(nonce)))

	data, err := s.contract.PackRecordDecision(agentID, action, reasonDigest)
	if err != nil {
		return Confirmation{}, &SubmissionError{Stage: StageBuild, Err: err}
	}

	to := s.contract.Address
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      s.cfg.GasLimit,
		GasPrice: new(big.Int).Set(s.cfg.GasPrice),
		Data:     data,
	})
	s.logger.Printf("transaction built: agent=%s nonce=%d", agentID, nonce)

	signed, err := s.signer.SignTx(tx)
	if err != nil {
		return Confirmation{}, &SubmissionError{Stage: StageSign, Err: err}
	}
	txHash := signed.Hash()
	span.SetAttributes(attribute.String("tx.hash", txHash.Hex()))

	if err := s.net.SendTransaction(ctx, signed); err != nil {
		return Confirmation{}, &SubmissionError{Stage: StageBroadcast, TxHash: txHash, Err: err}
	}
	s.logger.Printf("transaction sent: tx=%s, waiting for receipt", txHash.Hex())

	rcpt, err := s.waitReceipt(ctx, txHash)
	if err != nil {
		return Confirmation{}, &SubmissionError{Stage: StageReceipt, TxHash: txHash, Err: err}
	}
	if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
		return Confirmation{}, &SubmissionError{Stage: StageReceipt, TxHash: txHash, Err: ErrTransactionReverted}
	}

	conf = Confirmation{
		TxHash:  rcpt.TxHash,
		Nonce:   nonce,
		GasUsed: rcpt.GasUsed,
	}
	if rcpt.BlockNumber != nil {
		conf.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	s.logger.Printf("transaction confirmed: tx=%s block=%d", conf.TxHash.Hex(), conf.BlockNumber)
	return conf, nil
}

// waitReceipt polls until the transaction is mined, the timeout elapses or
// ctx ends. Only "not found" keeps it polling; any other error ends the wait.
func (s *Submitter) waitReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := s.net.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && rcpt != nil:
			return rcpt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return nil, waitErr(ctx)
			}
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, waitErr(ctx)
		case <-ticker.C:
		}
	}
}

func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrReceiptTimeout, ctx.Err())
	}
	return ctx.Err()
}
