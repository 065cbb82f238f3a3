package service

import (
	"context"
	"time"

	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

// BlockSource is the slice of chain.Network the health check needs.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// HealthService reports whether the ledger network answers.
type HealthService struct {
	net     BlockSource
	timeout time.Duration
}

func NewHealthService(net BlockSource, timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthService{net: net, timeout: timeout}
}

// Check never fails: an unreachable ledger is reported, not returned.
func (s *HealthService) Check(ctx context.Context) types.HealthResponse {
	resp := types.HealthResponse{
		Status:     "ok",
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if s.net == nil {
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.net.BlockNumber(ctx)
	if err != nil {
		return resp
	}
	resp.LedgerConnected = true
	resp.BlockNumber = &n
	return resp
}
