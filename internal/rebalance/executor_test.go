package rebalance

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/token"
	"github.com/meridian-fi/mvm/internal/types"
)

const vaultAddr = "vault"

type fixture struct {
	bank     *token.InMemoryBank
	registry *registry.Registry
	dex      *strategy.FixedRateDex
	executor *Executor
	staking  *strategy.Simulated
	lending  *strategy.Simulated
}

func setup(t *testing.T) *fixture {
	t.Helper()

	bank := token.NewInMemoryBank()
	staking := strategy.NewSimulated("atom-staking", "uatom", bank, 0)
	lending := strategy.NewSimulated("usdc-lending", "uusdc", bank, 0)

	assets := []types.Asset{
		{Denom: "uatom", Strategies: []types.Strategy{{ID: "atom-staking", Name: "Atom Staking"}}},
		{Denom: "uusdc", Strategies: []types.Strategy{{ID: "usdc-lending", Name: "USDC Lending"}}},
	}
	reg, err := registry.New(assets, map[string]strategy.Strategy{
		"atom-staking": staking,
		"usdc-lending": lending,
	})
	require.NoError(t, err)

	dex := strategy.NewFixedRateDex(bank, nil)
	dex.SetRate("uatom", "uusdc", 2, 1)

	require.NoError(t, bank.Mint("uatom", vaultAddr, sdkmath.NewInt(10_000)))

	return &fixture{
		bank:     bank,
		registry: reg,
		dex:      dex,
		executor: New(reg, dex, vaultAddr, nil),
		staking:  staking,
		lending:  lending,
	}
}

func amount(v int64) *sdkmath.Int {
	a := sdkmath.NewInt(v)
	return &a
}

func TestExecuteEmptyBatch(t *testing.T) {
	f := setup(t)

	_, err := f.executor.Execute(nil)
	require.ErrorIs(t, err, types.ErrNoInstructions)
}

func TestExecuteInvestThenWithdraw(t *testing.T) {
	f := setup(t)

	receipts, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionInvest, StrategyID: "atom-staking", Amount: amount(4000)},
		{Type: types.InstructionWithdraw, StrategyID: "atom-staking", Amount: amount(1500)},
	})
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	for i, r := range receipts {
		assert.Equal(t, i, r.StepIndex)
		assert.True(t, r.Success)
		assert.Equal(t, "uatom", r.Asset)
		assert.Equal(t, "atom-staking", r.StrategyID)
		assert.Equal(t, r.Requested.String(), r.Actual.String())
	}

	bal, err := f.staking.Balance(vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, "2500", bal.String())
	assert.Equal(t, "7500", f.bank.Balance("uatom", vaultAddr).String())
}

func TestExecuteSwapExactIn(t *testing.T) {
	f := setup(t)

	receipts, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionSwapExactIn, Swap: &types.SwapDetails{
			TokenIn:     "uatom",
			TokenOut:    "uusdc",
			Amount:      sdkmath.NewInt(1000),
			BoundAmount: sdkmath.NewInt(2000),
		}},
	})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.True(t, receipts[0].Success)
	assert.Equal(t, "2000", receipts[0].Actual.String())
	assert.Equal(t, "2000", f.bank.Balance("uusdc", vaultAddr).String())
}

func TestExecuteZapperIsNoOp(t *testing.T) {
	f := setup(t)

	before := f.bank.Balance("uatom", vaultAddr)
	receipts, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionZapper},
	})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.True(t, receipts[0].Success)
	assert.Equal(t, before.String(), f.bank.Balance("uatom", vaultAddr).String())
}

func TestExecuteMissingInstructionData(t *testing.T) {
	f := setup(t)

	// Invest without a strategy
	_, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionInvest, Amount: amount(100)},
	})
	require.ErrorIs(t, err, types.ErrMissingInstructionData)

	// Withdraw without an amount
	_, err = f.executor.Execute([]types.Instruction{
		{Type: types.InstructionWithdraw, StrategyID: "atom-staking"},
	})
	require.ErrorIs(t, err, types.ErrMissingInstructionData)

	// Swap without details
	_, err = f.executor.Execute([]types.Instruction{
		{Type: types.InstructionSwapExactIn},
	})
	require.ErrorIs(t, err, types.ErrMissingInstructionData)

	// Unknown instruction type
	_, err = f.executor.Execute([]types.Instruction{
		{Type: types.InstructionType("REBALANCE_ALL")},
	})
	require.ErrorIs(t, err, types.ErrMissingInstructionData)
}

func TestExecuteInvestIntoPausedStrategy(t *testing.T) {
	f := setup(t)
	_, err := f.registry.SetPaused("atom-staking", true)
	require.NoError(t, err)

	receipts, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionInvest, StrategyID: "atom-staking", Amount: amount(100)},
	})
	require.ErrorIs(t, err, types.ErrStrategyPaused)
	require.Len(t, receipts, 1)
	assert.False(t, receipts[0].Success)
}

func TestExecuteAbortsMidBatchKeepingEarlierSteps(t *testing.T) {
	f := setup(t)

	receipts, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionInvest, StrategyID: "atom-staking", Amount: amount(4000)},
		// Withdraw more than is deployed: the batch aborts here.
		{Type: types.InstructionWithdraw, StrategyID: "atom-staking", Amount: amount(9999)},
		// Never reached.
		{Type: types.InstructionInvest, StrategyID: "atom-staking", Amount: amount(100)},
	})
	require.ErrorIs(t, err, types.ErrStrategyWithdraw)
	require.Len(t, receipts, 2)
	assert.True(t, receipts[0].Success)
	assert.False(t, receipts[1].Success)

	// Step 0 remains applied.
	bal, balErr := f.staking.Balance(vaultAddr)
	require.NoError(t, balErr)
	assert.Equal(t, "4000", bal.String())
}

func TestExecuteUnknownStrategy(t *testing.T) {
	f := setup(t)

	_, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionWithdraw, StrategyID: "ghost", Amount: amount(1)},
	})
	require.ErrorIs(t, err, types.ErrStrategyNotFound)
}

func TestExecuteNegativeAmount(t *testing.T) {
	f := setup(t)

	_, err := f.executor.Execute([]types.Instruction{
		{Type: types.InstructionInvest, StrategyID: "atom-staking", Amount: amount(-5)},
	})
	require.ErrorIs(t, err, types.ErrNegativeNotAllowed)
}

func TestExecuteSwapDeadline(t *testing.T) {
	bank := token.NewInMemoryBank()
	require.NoError(t, bank.Mint("uatom", vaultAddr, sdkmath.NewInt(1000)))

	staking := strategy.NewSimulated("atom-staking", "uatom", bank, 0)
	reg, err := registry.New(
		[]types.Asset{{Denom: "uatom", Strategies: []types.Strategy{{ID: "atom-staking", Name: "Atom Staking"}}}},
		map[string]strategy.Strategy{"atom-staking": staking},
	)
	require.NoError(t, err)

	fixedNow := time.Unix(5_000_000, 0)
	dex := strategy.NewFixedRateDex(bank, func() time.Time { return fixedNow })
	dex.SetRate("uatom", "uusdc", 1, 1)
	exec := New(reg, dex, vaultAddr, func() time.Time { return fixedNow })

	receipts, err := exec.Execute([]types.Instruction{
		{Type: types.InstructionSwapExactIn, Swap: &types.SwapDetails{
			TokenIn:  "uatom",
			TokenOut: "uusdc",
			Amount:   sdkmath.NewInt(100),
			Deadline: 4_999_999,
		}},
	})
	require.ErrorIs(t, err, strategy.ErrDeadlineExceeded)
	require.Len(t, receipts, 1)
	assert.False(t, receipts[0].Success)
}
