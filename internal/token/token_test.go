package token

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenMintTransferBurn(t *testing.T) {
	tok := NewToken("WETH", 18)
	require.NoError(t, tok.Mint("alice", uint256.NewInt(100)))
	require.NoError(t, tok.Transfer("alice", "bob", uint256.NewInt(30)))

	assert.Equal(t, uint64(70), tok.BalanceOf("alice").Uint64())
	assert.Equal(t, uint64(30), tok.BalanceOf("bob").Uint64())

	err := tok.Transfer("bob", "alice", uint256.NewInt(31))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, tok.Burn("bob", uint256.NewInt(30)))
	assert.Equal(t, uint64(70), tok.TotalSupply().Uint64())
	assert.ErrorIs(t, tok.Burn("bob", uint256.NewInt(1)), ErrInsufficientBalance)
}

func TestTokenPaused(t *testing.T) {
	tok := NewToken("WETH", 18)
	tok.SetPaused(true)
	assert.ErrorIs(t, tok.Mint("alice", uint256.NewInt(1)), ErrPaused)

	tok.SetPaused(false)
	assert.NoError(t, tok.Mint("alice", uint256.NewInt(1)))
}

func TestVault(t *testing.T) {
	ctx := context.Background()
	weth := NewToken("WETH", 18)
	require.NoError(t, weth.Mint("alice", uint256.NewInt(10)))
	v := NewVault("vault", map[string]*Token{"WETH": weth})

	ok, err := v.TransferIn(ctx, "WETH", "alice", uint256.NewInt(4))
	require.NoError(t, err)
	assert.True(t, ok)

	bal, err := v.BalanceOf(ctx, "WETH", "vault")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), bal.Uint64())

	ok, err = v.TransferOut(ctx, "WETH", "bob", uint256.NewInt(5))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = v.TransferIn(ctx, "WBTC", "alice", uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestStablecoinPullBurnTransfer(t *testing.T) {
	ctx := context.Background()
	s := NewStablecoin("DSC", "engine")

	ok, err := s.Mint(ctx, "alice", uint256.NewInt(100))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Pull(ctx, "alice", uint256.NewInt(40))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.Burn(ctx, uint256.NewInt(30)))

	ok, err = s.Transfer(ctx, "alice", uint256.NewInt(10))
	require.NoError(t, err)
	assert.True(t, ok)

	bal, _ := s.BalanceOf(ctx, "alice")
	assert.Equal(t, uint64(70), bal.Uint64())
	supply, _ := s.TotalIssued(ctx)
	assert.Equal(t, uint64(70), supply.Uint64())

	assert.Error(t, s.Burn(ctx, uint256.NewInt(1)))
}

func TestVaultCredit(t *testing.T) {
	weth := NewToken("WETH", 18)
	v := NewVault("vault", map[string]*Token{"WETH": weth})

	require.NoError(t, v.Credit(context.Background(), "WETH", "alice", uint256.NewInt(5)))
	assert.Equal(t, uint64(5), weth.BalanceOf("alice").Uint64())
	assert.Equal(t, uint64(5), weth.TotalSupply().Uint64())

	assert.ErrorIs(t, v.Credit(context.Background(), "DOGE", "alice", uint256.NewInt(1)), ErrUnknownToken)
}
