package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the vault's transaction-signing key and signs the raw
// transactions the bridge client submits on its behalf (spec.md §4.8
// Submitted via `sendCrossChain`, and ERC20 approve calls), adapted from the teacher's EIP-712 order signer — the digest
// construction is replaced with go-ethereum's standard transaction signing
// since this domain submits on-chain transactions rather than off-chain
// exchange orders.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID using the EIP-155 replay-protected signer and
// returns the signed transaction ready for broadcast.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.NewEIP155Signer(chainID)
	signed, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing transaction: %w", err)
	}
	return signed, nil
}

// SignLondonTx signs tx using the dynamic-fee (EIP-1559) signer, for chains
// that have activated the London fork.
func (s *Signer) SignLondonTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.NewLondonSigner(chainID)
	signed, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing transaction: %w", err)
	}
	return signed, nil
}
