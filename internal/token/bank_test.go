package token

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintTracksSupply(t *testing.T) {
	bank := NewInMemoryBank()

	require.NoError(t, bank.Mint("uusdc", "alice", sdkmath.NewInt(500)))
	require.NoError(t, bank.Mint("uusdc", "bob", sdkmath.NewInt(300)))

	assert.Equal(t, "500", bank.Balance("uusdc", "alice").String())
	assert.Equal(t, "300", bank.Balance("uusdc", "bob").String())
	assert.Equal(t, "800", bank.Supply("uusdc").String())
}

func TestSendMovesBalance(t *testing.T) {
	bank := NewInMemoryBank()
	require.NoError(t, bank.Mint("uusdc", "alice", sdkmath.NewInt(500)))

	require.NoError(t, bank.Send("uusdc", "alice", "bob", sdkmath.NewInt(200)))

	assert.Equal(t, "300", bank.Balance("uusdc", "alice").String())
	assert.Equal(t, "200", bank.Balance("uusdc", "bob").String())
	// Supply is unchanged by transfers.
	assert.Equal(t, "500", bank.Supply("uusdc").String())
}

func TestSendInsufficientFunds(t *testing.T) {
	bank := NewInMemoryBank()
	require.NoError(t, bank.Mint("uusdc", "alice", sdkmath.NewInt(100)))

	err := bank.Send("uusdc", "alice", "bob", sdkmath.NewInt(101))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "100", bank.Balance("uusdc", "alice").String())
}

func TestBurnReducesSupply(t *testing.T) {
	bank := NewInMemoryBank()
	require.NoError(t, bank.Mint("shares", "alice", sdkmath.NewInt(1000)))

	require.NoError(t, bank.Burn("shares", "alice", sdkmath.NewInt(400)))
	assert.Equal(t, "600", bank.Balance("shares", "alice").String())
	assert.Equal(t, "600", bank.Supply("shares").String())

	err := bank.Burn("shares", "alice", sdkmath.NewInt(601))
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestValidationErrors(t *testing.T) {
	bank := NewInMemoryBank()

	require.ErrorIs(t, bank.Mint("uusdc", "", sdkmath.NewInt(1)), ErrEmptyAccount)
	require.ErrorIs(t, bank.Mint("uusdc", "alice", sdkmath.ZeroInt()), ErrInvalidAmount)
	require.ErrorIs(t, bank.Mint("uusdc", "alice", sdkmath.Int{}), ErrInvalidAmount)
	require.ErrorIs(t, bank.Send("uusdc", "", "bob", sdkmath.NewInt(1)), ErrEmptyAccount)
	require.ErrorIs(t, bank.Send("uusdc", "alice", "bob", sdkmath.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, bank.Burn("uusdc", "alice", sdkmath.NewInt(-1)), ErrInvalidAmount)
}

func TestUnknownAccountsHoldZero(t *testing.T) {
	bank := NewInMemoryBank()
	assert.True(t, bank.Balance("uusdc", "nobody").IsZero())
	assert.True(t, bank.Supply("unknown").IsZero())
}
