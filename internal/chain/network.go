// Package chain is the decision log's view of the ledger network: a JSON-RPC
// node, the decision logger contract, and the key that signs for it.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Network is everything the decision log needs from a node. *ethclient.Client
// satisfies it.
type Network interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

var _ Network = (*ethclient.Client)(nil)

const dialProbeTimeout = 5 * time.Second

// Dial connects to a node and checks that it answers before returning.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", url, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, dialProbeTimeout)
	defer cancel()
	if _, err := client.BlockNumber(probeCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger %s unreachable: %w", url, err)
	}
	return client, nil
}
