package service

import (
	"context"
	"log"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aidecisionlog/server/internal/chain"
	"github.com/aidecisionlog/server/internal/decisionlog/digest"
	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

// Reader reads committed decisions back from the ledger's event log.
type Reader struct {
	net      chain.Network
	contract *chain.Contract
	logger   *log.Logger
	tracer   trace.Tracer
}

func NewReader(net chain.Network, contract *chain.Contract, logger *log.Logger) *Reader {
	return &Reader{
		net:      net,
		contract: contract,
		logger:   logger,
		tracer:   otel.Tracer("github.com/aidecisionlog/server/internal/decisionlog/service"),
	}
}

// FetchAll returns every DecisionRecorded entry in blocks fromBlock..toBlock
// (nil toBlock means latest), in ledger order: block number, then
// transaction index, then log index.
//
// Retrieval is best-effort. A failed query yields an empty, non-nil slice
// and a *RetrievalError; it never panics or partially fills the result.
// Logs that cannot be decoded, and logs removed by a reorg, are skipped.
func (r *Reader) FetchAll(ctx context.Context, fromBlock uint64, toBlock *uint64) ([]types.LedgerEntry, error) {
	ctx, span := r.tracer.Start(ctx, "decisionlog.fetch_all",
		trace.WithAttributes(attribute.Int64("block.from", int64(fromBlock))))
	defer span.End()

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{r.contract.Address},
		Topics:    [][]common.Hash{{r.contract.DecisionRecordedTopic()}},
	}
	if toBlock != nil {
		q.ToBlock = new(big.Int).SetUint64(*toBlock)
		span.SetAttributes(attribute.Int64("block.to", int64(*toBlock)))
	}

	logs, err := r.net.FilterLogs(ctx, q)
	if err != nil {
		span.RecordError(err)
		r.logger.Printf("fetch decisions failed: %v", err)
		return []types.LedgerEntry{}, &RetrievalError{FromBlock: fromBlock, ToBlock: toBlock, Err: err}
	}

	entries := make([]types.LedgerEntry, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := r.contract.UnpackDecisionRecorded(lg)
		if err != nil {
			r.logger.Printf("skipping undecodable log tx=%s index=%d: %v", lg.TxHash.Hex(), lg.Index, err)
			continue
		}

		entry := types.LedgerEntry{
			AgentID:      ev.AgentID,
			Action:       ev.Action,
			ReasonDigest: digest.Digest(ev.ReasonHash),
			TxHash:       lg.TxHash.Hex(),
			BlockNumber:  lg.BlockNumber,
			TxIndex:      lg.TxIndex,
			LogIndex:     lg.Index,
		}
		if ev.Timestamp != nil && ev.Timestamp.IsUint64() {
			entry.Timestamp = ev.Timestamp.Uint64()
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.LogIndex < b.LogIndex
	})

	span.SetAttributes(attribute.Int("decisions.count", len(entries)))
	return entries, nil
}
