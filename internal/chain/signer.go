package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidKey      = errors.New("invalid private key")
	ErrAccountMismatch = errors.New("configured account does not match private key")
)

// KeySigner signs transactions with a key held in process memory. The key
// is supplied by configuration; it is never generated or persisted here.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewKeySigner parses a hex private key for chainID. When account is
// non-empty it must equal the key's address.
func NewKeySigner(hexKey string, chainID *big.Int, account string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewKeySignerFromKey(key, chainID, account)
}

func NewKeySignerFromKey(key *ecdsa.PrivateKey, chainID *big.Int, account string) (*KeySigner, error) {
	if chainID == nil {
		return nil, errors.New("chain id is required")
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	account = strings.TrimSpace(account)
	if account != "" {
		if !common.IsHexAddress(account) || common.HexToAddress(account) != addr {
			return nil, fmt.Errorf("%w: %s, key belongs to %s", ErrAccountMismatch, account, addr.Hex())
		}
	}

	return &KeySigner{
		key:     key,
		address: addr,
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

func (s *KeySigner) Address() common.Address { return s.address }

func (s *KeySigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, s.signer, s.key)
}
