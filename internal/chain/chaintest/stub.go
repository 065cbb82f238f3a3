// Package chaintest provides an in-memory chain.Network for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aidecisionlog/server/internal/chain"
)

// Stub records every call and mines each broadcast transaction into its own
// block. When Contract is set, recordDecision calls also emit a
// DecisionRecorded log, so submissions can be read back.
//
// Thread-safety: all methods are safe for concurrent use.
type Stub struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Contract     *chain.Contract
	Head         uint64
	BaseNonce    uint64
	BlockTime    uint64

	// Injected failures.
	ChainIDErr error
	BlockErr   error
	NonceErr   error
	SendErr    error
	ReceiptErr error
	FilterErr  error

	// ReceiptTxHash, when non-zero, is reported as the hash of every receipt.
	ReceiptTxHash common.Hash
	// Reverted marks every mined transaction as failed.
	Reverted bool
	// Unmined keeps broadcast transactions out of blocks forever.
	Unmined bool
	// PendingPolls is how many receipt polls answer NotFound before mining.
	PendingPolls int

	nonceCalls   int
	receiptCalls int
	sent         []*types.Transaction
	receipts     map[common.Hash]*types.Receipt
	polls        map[common.Hash]int
	logs         []types.Log
	queries      []ethereum.FilterQuery
}

func NewStub() *Stub {
	return &Stub{
		ChainIDValue: big.NewInt(31337),
		BlockTime:    1760600000,
		receipts:     make(map[common.Hash]*types.Receipt),
		polls:        make(map[common.Hash]int),
	}
}

var _ chain.Network = (*Stub)(nil)

func (s *Stub) ChainID(_ context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ChainIDErr != nil {
		return nil, s.ChainIDErr
	}
	return new(big.Int).Set(s.ChainIDValue), nil
}

func (s *Stub) BlockNumber(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BlockErr != nil {
		return 0, s.BlockErr
	}
	return s.Head, nil
}

func (s *Stub) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonceCalls++
	if s.NonceErr != nil {
		return 0, s.NonceErr
	}
	return s.BaseNonce + uint64(len(s.sent)), nil
}

func (s *Stub) SendTransaction(_ context.Context, tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, tx)
	if s.Unmined {
		return nil
	}

	s.Head++
	rcpt := &types.Receipt{
		Status:           types.ReceiptStatusSuccessful,
		TxHash:           tx.Hash(),
		BlockNumber:      new(big.Int).SetUint64(s.Head),
		TransactionIndex: 0,
		GasUsed:          tx.Gas() / 2,
	}
	if s.Reverted {
		rcpt.Status = types.ReceiptStatusFailed
	}
	if s.ReceiptTxHash != (common.Hash{}) {
		rcpt.TxHash = s.ReceiptTxHash
	}
	s.receipts[tx.Hash()] = rcpt

	if s.Contract != nil && !s.Reverted && tx.To() != nil && *tx.To() == s.Contract.Address {
		s.emit(tx, rcpt)
	}
	return nil
}

func (s *Stub) emit(tx *types.Transaction, rcpt *types.Receipt) {
	agent, action, hash, err := s.Contract.UnpackRecordDecision(tx.Data())
	if err != nil {
		return
	}
	data, err := s.Contract.PackDecisionRecorded(chain.DecisionRecorded{
		AgentID:    agent,
		Action:     action,
		ReasonHash: hash,
		Timestamp:  new(big.Int).SetUint64(s.BlockTime + s.Head),
	})
	if err != nil {
		return
	}
	s.logs = append(s.logs, types.Log{
		Address:     s.Contract.Address,
		Topics:      []common.Hash{s.Contract.DecisionRecordedTopic()},
		Data:        data,
		BlockNumber: s.Head,
		TxHash:      rcpt.TxHash,
		TxIndex:     0,
		Index:       uint(len(s.logs)),
	})
}

func (s *Stub) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptCalls++
	if s.ReceiptErr != nil {
		return nil, s.ReceiptErr
	}
	rcpt, ok := s.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if s.polls[txHash] < s.PendingPolls {
		s.polls[txHash]++
		return nil, ethereum.NotFound
	}
	return rcpt, nil
}

// FilterLogs returns stored logs matching the query's block range, address
// and first topic, in insertion order.
func (s *Stub) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.FilterErr != nil {
		return nil, s.FilterErr
	}

	var out []types.Log
	for _, lg := range s.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, lg.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && (len(lg.Topics) == 0 || !containsHash(q.Topics[0], lg.Topics[0])) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

// AddLog stores a log as-is, letting tests control ordering and content.
func (s *Stub) AddLog(lg types.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, lg)
}

// Sent returns a copy of every broadcast transaction.
func (s *Stub) Sent() []*types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Transaction, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *Stub) NonceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonceCalls
}

func (s *Stub) ReceiptCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiptCalls
}

func (s *Stub) Queries() []ethereum.FilterQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ethereum.FilterQuery, len(s.queries))
	copy(out, s.queries)
	return out
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}
