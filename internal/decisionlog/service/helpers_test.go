package service_test

import (
	"io"
	"log"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/aidecisionlog/server/internal/chain"
	"github.com/aidecisionlog/server/internal/chain/chaintest"
	"github.com/aidecisionlog/server/internal/decisionlog/service"
)

const contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

type rig struct {
	stub      *chaintest.Stub
	contract  *chain.Contract
	signer    *chain.KeySigner
	submitter *service.Submitter
	reader    *service.Reader
}

// newRig wires a Submitter and Reader to a stub network that mines every
// transaction immediately.
func newRig(t *testing.T, cfg service.SubmitterConfig) *rig {
	t.Helper()

	contract, err := chain.LoadContract(contractAddr, "")
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := chain.NewKeySignerFromKey(key, big.NewInt(31337), "")
	require.NoError(t, err)

	stub := chaintest.NewStub()
	stub.Contract = contract

	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 2 * time.Second
	}

	return &rig{
		stub:      stub,
		contract:  contract,
		signer:    signer,
		submitter: service.NewSubmitter(stub, contract, signer, cfg, discardLogger()),
		reader:    service.NewReader(stub, contract, discardLogger()),
	}
}
