package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testPrivateKeyHex)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, s.Address())
}

func TestNewSignerAcceptsHexPrefix(t *testing.T) {
	s, err := NewSigner("0x" + testPrivateKeyHex)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, s.Address())
}

func TestNewSignerRejectsInvalidKey(t *testing.T) {
	_, err := NewSigner("not-hex")
	assert.Error(t, err)
}

func TestSignTxProducesRecoverableSignature(t *testing.T) {
	s, err := NewSigner(testPrivateKeyHex)
	require.NoError(t, err)

	chainID := big.NewInt(1)
	tx := types.NewTransaction(0, common.HexToAddress("0xabc"), big.NewInt(0), 21000, big.NewInt(1_000_000_000), nil)

	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.NewEIP155Signer(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestSignLondonTxProducesRecoverableSignature(t *testing.T) {
	s, err := NewSigner(testPrivateKeyHex)
	require.NoError(t, err)

	chainID := big.NewInt(42161)
	tx := types.NewTransaction(0, common.HexToAddress("0xabc"), big.NewInt(0), 21000, big.NewInt(1_000_000_000), nil)

	signed, err := s.SignLondonTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.NewLondonSigner(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}
