/*

This file contains the vault service: the single entry point for deposits,
withdrawals, investment, rebalancing and fee accrual. The engine is logically
single-threaded per call: a mutex serializes every state-mutating entry point,
so no two calls ever observe overlapping fund-ledger snapshots.

*/

package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridian-fi/mvm/internal/allocator"
	"github.com/meridian-fi/mvm/internal/fees"
	"github.com/meridian-fi/mvm/internal/ledger"
	"github.com/meridian-fi/mvm/internal/logger"
	"github.com/meridian-fi/mvm/internal/metrics"
	"github.com/meridian-fi/mvm/internal/rebalance"
	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/solver"
	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/token"
	"github.com/meridian-fi/mvm/internal/types"
)

// RecordStore persists per-operation receipt logs. A nil store disables
// persistence; receipts are still returned to callers.
type RecordStore interface {
	SaveOperationRecord(record types.OperationRecord) (int64, error)
}

// RegistryStore persists paused-flag changes. A nil store keeps them in memory only.
type RegistryStore interface {
	SetStrategyPaused(strategyID string, paused bool) error
}

// Authorizer guards manager and rebalancer entry points.
type Authorizer interface {
	CanManage(caller string) bool
	CanRebalance(caller string) bool
}

// Config holds the collaborators and parameters for creating a Service.
type Config struct {
	Registry       *registry.Registry
	Bank           token.Bank
	Dex            strategy.SwapEngine
	Authorizer     Authorizer
	Records        RecordStore
	RegistryStore  RegistryStore
	VaultAddress   string
	FeeCollector   string
	ShareDenom     string
	ProtocolFeeBps uint64
	VaultFeeBps    uint64
	Now            func() time.Time
}

// Service is the fund-accounting and allocation engine.
type Service struct {
	mu sync.Mutex

	registry *registry.Registry
	bank     token.Bank
	ledger   *ledger.Ledger
	executor *rebalance.Executor
	auth     Authorizer
	records  RecordStore
	regStore RegistryStore

	vaultAddr    string
	feeCollector string
	shareDenom   string
	feeRateBps   uint64

	now         func() time.Time
	lastAccrual time.Time

	log zerolog.Logger
}

// New validates the configuration and creates a Service.
func New(cfg Config) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}

	rateBps, err := fees.CombinedRateBps(cfg.ProtocolFeeBps, cfg.VaultFeeBps)
	if err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		registry:     cfg.Registry,
		bank:         cfg.Bank,
		ledger:       ledger.New(cfg.Registry, cfg.Bank, cfg.VaultAddress),
		executor:     rebalance.New(cfg.Registry, cfg.Dex, cfg.VaultAddress, now),
		auth:         cfg.Authorizer,
		records:      cfg.Records,
		regStore:     cfg.RegistryStore,
		vaultAddr:    cfg.VaultAddress,
		feeCollector: cfg.FeeCollector,
		shareDenom:   cfg.ShareDenom,
		feeRateBps:   rateBps,
		now:          now,
		lastAccrual:  now(),
		log:          logger.GetForComponent("vault_service"),
	}

	s.log.Info().
		Int("assets", cfg.Registry.AssetCount()).
		Uint64("feeRateBps", rateBps).
		Msg("Vault service created")

	return s, nil
}

func validateConfig(cfg Config) error {
	if cfg.Registry == nil {
		return fmt.Errorf("%w: registry cannot be nil", types.ErrNotInitialized)
	}
	if cfg.Bank == nil {
		return fmt.Errorf("%w: bank cannot be nil", types.ErrNotInitialized)
	}
	if cfg.Dex == nil {
		return fmt.Errorf("%w: swap engine cannot be nil", types.ErrNotInitialized)
	}
	if cfg.Authorizer == nil {
		return fmt.Errorf("%w: authorizer cannot be nil", types.ErrNotInitialized)
	}
	if cfg.VaultAddress == "" || cfg.FeeCollector == "" || cfg.ShareDenom == "" {
		return fmt.Errorf("%w: vault address, fee collector and share denom are required", types.ErrNotInitialized)
	}
	return nil
}

// Deposit takes assets from the depositor proportionally to current managed
// funds and mints shares. When invest is true, an investment plan for the
// deposited amounts is generated and executed immediately; assets with no
// prior investment stay idle.
func (s *Service) Deposit(ctx context.Context, amountsDesired, amountsMin []sdkmath.Int, depositor string, invest bool) ([]sdkmath.Int, sdkmath.Int, *types.InvestmentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opLog := s.opLogger(types.OpDeposit)
	record := s.newRecord(types.OpDeposit, depositor)

	amounts, minted, plan, err := s.deposit(amountsDesired, amountsMin, depositor, invest, &record, opLog)
	s.finishRecord(&record, err)
	metrics.ObserveOperation(types.OpDeposit, err)
	s.publishFundMetrics()
	if err != nil {
		return nil, sdkmath.Int{}, nil, err
	}
	return amounts, minted, plan, nil
}

func (s *Service) deposit(amountsDesired, amountsMin []sdkmath.Int, depositor string, invest bool, record *types.OperationRecord, opLog zerolog.Logger) ([]sdkmath.Int, sdkmath.Int, *types.InvestmentPlan, error) {
	if depositor == "" {
		return nil, sdkmath.Int{}, nil, fmt.Errorf("%w: depositor is required", types.ErrNotInitialized)
	}

	if _, err := s.accrueLocked(opLog); err != nil {
		return nil, sdkmath.Int{}, nil, err
	}

	funds, err := s.ledger.TotalManagedFunds()
	if err != nil {
		return nil, sdkmath.Int{}, nil, err
	}

	supply := s.bank.Supply(s.shareDenom)
	result, err := solver.OptimalAmounts(funds, amountsDesired, amountsMin, supply)
	if err != nil {
		return nil, sdkmath.Int{}, nil, err
	}

	// Pull the assets in. The bank transfer is atomic per asset; a depositor
	// without sufficient balance fails before any shares exist.
	assets := s.registry.Assets()
	for i, amount := range result.Amounts {
		if amount.IsZero() {
			continue
		}
		if err := s.bank.Send(assets[i].Denom, depositor, s.vaultAddr, amount); err != nil {
			return nil, sdkmath.Int{}, nil, fmt.Errorf("%w: deposit transfer of %s %s: %v",
				types.ErrInsufficientBalance, amount, assets[i].Denom, err)
		}
		record.Steps = append(record.Steps, types.StepReceipt{
			StepIndex: len(record.Steps),
			Kind:      "TRANSFER_IN",
			Asset:     assets[i].Denom,
			Requested: amount,
			Actual:    amount,
			Success:   true,
			Timestamp: s.now(),
		})
	}

	// Mint shares. On the first deposit a fixed minimum-liquidity quantity is
	// minted to the vault itself and never leaves it.
	depositorShares := result.SharesToMint
	if result.Bootstrap {
		if err := s.bank.Mint(s.shareDenom, s.vaultAddr, solver.MinimumLiquidity); err != nil {
			return nil, sdkmath.Int{}, nil, fmt.Errorf("minting locked liquidity: %w", err)
		}
		depositorShares = depositorShares.Sub(solver.MinimumLiquidity)
	}
	if depositorShares.IsPositive() {
		if err := s.bank.Mint(s.shareDenom, depositor, depositorShares); err != nil {
			return nil, sdkmath.Int{}, nil, fmt.Errorf("minting depositor shares: %w", err)
		}
	}
	record.SharesDelta = result.SharesToMint

	opLog.Info().
		Str("depositor", depositor).
		Str("sharesMinted", result.SharesToMint.String()).
		Bool("bootstrap", result.Bootstrap).
		Msg("Deposit accepted")

	var plan *types.InvestmentPlan
	if invest {
		plan, err = s.investDeposited(result.Amounts, record)
		if err != nil {
			// Shares are minted and funds are in; the failed investment step is
			// reported but not rolled back.
			return result.Amounts, result.SharesToMint, plan, err
		}
	}

	return result.Amounts, result.SharesToMint, plan, nil
}

// investDeposited routes the freshly deposited amounts into strategies
// proportionally to the pre-deposit allocation. The generated plan passes the
// same registry validation as caller-supplied allocations, so a paused
// strategy that still holds balance fails the call instead of receiving funds.
func (s *Service) investDeposited(amounts []sdkmath.Int, record *types.OperationRecord) (*types.InvestmentPlan, error) {
	funds, err := s.ledger.TotalManagedFunds()
	if err != nil {
		return nil, err
	}
	plan, err := allocator.GeneratePlan(funds, amounts)
	if err != nil {
		return nil, err
	}
	if err := allocator.Validate(s.registry, s.planAllocations(plan)); err != nil {
		return plan, err
	}

	for _, allocation := range plan.Allocations {
		if allocation == nil {
			continue
		}
		if err := s.executeAllocation(*allocation, record); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// planAllocations expands a plan's entries into the dense per-asset form the
// allocator validates, substituting zero vectors for nil entries.
func (s *Service) planAllocations(plan *types.InvestmentPlan) []types.AssetInvestmentAllocation {
	assets := s.registry.Assets()
	allocations := make([]types.AssetInvestmentAllocation, len(assets))
	for i, asset := range assets {
		if i < len(plan.Allocations) && plan.Allocations[i] != nil {
			allocations[i] = *plan.Allocations[i]
			continue
		}
		zero := make([]sdkmath.Int, len(asset.Strategies))
		for j := range zero {
			zero[j] = sdkmath.ZeroInt()
		}
		allocations[i] = types.AssetInvestmentAllocation{Asset: asset.Denom, StrategyAmounts: zero}
	}
	return allocations
}

// executeAllocation invokes each strategy deposit independently; a failing
// call is a hard error and prior successful calls are not undone.
func (s *Service) executeAllocation(allocation types.AssetInvestmentAllocation, record *types.OperationRecord) error {
	i := s.registry.IndexOf(allocation.Asset)
	if i < 0 {
		return fmt.Errorf("%w: %s", types.ErrWrongAssetAddress, allocation.Asset)
	}
	asset, err := s.registry.AssetAt(i)
	if err != nil {
		return err
	}

	for j, amount := range allocation.StrategyAmounts {
		if !amount.IsPositive() {
			continue
		}
		st := asset.Strategies[j]
		receipt := types.StepReceipt{
			StepIndex:  len(record.Steps),
			Kind:       string(types.InstructionInvest),
			Asset:      asset.Denom,
			StrategyID: st.ID,
			Requested:  amount,
			Actual:     sdkmath.ZeroInt(),
			Timestamp:  s.now(),
		}

		adapter, err := s.registry.Adapter(st.ID)
		if err != nil {
			receipt.Message = err.Error()
			record.Steps = append(record.Steps, receipt)
			return err
		}
		if err := adapter.Deposit(amount, s.vaultAddr); err != nil {
			receipt.Message = err.Error()
			record.Steps = append(record.Steps, receipt)
			return fmt.Errorf("invest into %s: %w", st.ID, err)
		}

		receipt.Actual = amount
		receipt.Success = true
		record.Steps = append(record.Steps, receipt)
	}
	return nil
}

// Invest moves idle funds into strategies per the caller-supplied allocations.
// Validation runs in full before any strategy call.
func (s *Service) Invest(ctx context.Context, caller string, allocations []types.AssetInvestmentAllocation) ([]types.StepReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.newRecord(types.OpInvest, caller)
	steps, err := s.invest(caller, allocations, &record)
	s.finishRecord(&record, err)
	metrics.ObserveOperation(types.OpInvest, err)
	s.publishFundMetrics()
	return steps, err
}

func (s *Service) invest(caller string, allocations []types.AssetInvestmentAllocation, record *types.OperationRecord) ([]types.StepReceipt, error) {
	if !s.auth.CanManage(caller) {
		return nil, fmt.Errorf("%w: %s", types.ErrUnauthorized, caller)
	}
	if err := allocator.Validate(s.registry, allocations); err != nil {
		return nil, err
	}

	for _, allocation := range allocations {
		if err := s.executeAllocation(allocation, record); err != nil {
			return record.Steps, err
		}
	}
	return record.Steps, nil
}

// Rebalance runs an ordered instruction batch. Authorization is checked before
// any instruction executes; mid-batch failures leave earlier instructions
// applied.
func (s *Service) Rebalance(ctx context.Context, caller string, instructions []types.Instruction) ([]types.StepReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.newRecord(types.OpRebalance, caller)

	var steps []types.StepReceipt
	err := func() error {
		if !s.auth.CanRebalance(caller) {
			return fmt.Errorf("%w: %s", types.ErrUnauthorized, caller)
		}
		if _, err := s.accrueLocked(s.opLogger(types.OpRebalance)); err != nil {
			return err
		}
		var execErr error
		steps, execErr = s.executor.Execute(instructions)
		record.Steps = steps
		return execErr
	}()

	s.finishRecord(&record, err)
	metrics.ObserveOperation(types.OpRebalance, err)
	s.publishFundMetrics()
	return steps, err
}

// AccrueFees assesses elapsed-time fees immediately and returns the shares minted.
func (s *Service) AccrueFees(ctx context.Context) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.newRecord(types.OpAccrual, "")
	minted, err := s.accrueLocked(s.opLogger(types.OpAccrual))
	if err == nil {
		record.SharesDelta = minted
	}
	s.finishRecord(&record, err)
	metrics.ObserveOperation(types.OpAccrual, err)
	return minted, err
}

// accrueLocked mints dilution shares for the time elapsed since the last
// accrual. Zero elapsed time is an idempotent no-op. Callers hold s.mu.
func (s *Service) accrueLocked(opLog zerolog.Logger) (sdkmath.Int, error) {
	nowTime := s.now()
	elapsed := nowTime.Sub(s.lastAccrual)
	if elapsed < 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: clock moved backwards", types.ErrArithmetic)
	}

	supply := s.bank.Supply(s.shareDenom)
	minted, err := fees.SharesToMint(supply, s.feeRateBps, elapsed)
	if err != nil {
		return sdkmath.Int{}, err
	}
	s.lastAccrual = nowTime

	if minted.IsPositive() {
		if err := s.bank.Mint(s.shareDenom, s.feeCollector, minted); err != nil {
			return sdkmath.Int{}, fmt.Errorf("minting fee shares: %w", err)
		}
		opLog.Info().Str("shares", minted.String()).Dur("elapsed", elapsed).Msg("Fee shares accrued")
	}
	return minted, nil
}

// TotalManagedFunds returns the fund ledger, recomputed from live balances.
func (s *Service) TotalManagedFunds(ctx context.Context) ([]types.AssetFunds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.TotalManagedFunds()
}

// CurrentIdleFunds returns the idle balance per asset.
func (s *Service) CurrentIdleFunds(ctx context.Context) (map[string]sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CurrentIdleFunds()
}

// CurrentInvestedFunds returns the deployed balance per asset.
func (s *Service) CurrentInvestedFunds(ctx context.Context) (map[string]sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CurrentInvestedFunds()
}

// ShareSupply returns the current total share supply.
func (s *Service) ShareSupply(ctx context.Context) sdkmath.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank.Supply(s.shareDenom)
}

// ShareBalance returns a holder's share balance.
func (s *Service) ShareBalance(ctx context.Context, holder string) sdkmath.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank.Balance(s.shareDenom, holder)
}

// PauseStrategy marks a strategy paused; paused strategies reject new
// investment and are skipped by the withdrawal waterfall.
func (s *Service) PauseStrategy(ctx context.Context, caller, strategyID string) error {
	return s.setStrategyPaused(caller, strategyID, true)
}

// UnpauseStrategy reactivates a paused strategy.
func (s *Service) UnpauseStrategy(ctx context.Context, caller, strategyID string) error {
	return s.setStrategyPaused(caller, strategyID, false)
}

func (s *Service) setStrategyPaused(caller, strategyID string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.CanManage(caller) {
		return fmt.Errorf("%w: %s", types.ErrUnauthorized, caller)
	}
	asset, err := s.registry.SetPaused(strategyID, paused)
	if err != nil {
		return err
	}
	if s.regStore != nil {
		if err := s.regStore.SetStrategyPaused(strategyID, paused); err != nil {
			s.log.Error().Err(err).Str("strategy", strategyID).Msg("Failed to persist paused flag")
		}
	}

	s.log.Info().Str("asset", asset).Str("strategy", strategyID).Bool("paused", paused).Msg("Strategy pause flag updated")
	return nil
}

// Rescue drains a strategy's entire live balance back to idle funds and pauses
// it. Used when a strategy misbehaves and its capital must be pulled.
func (s *Service) Rescue(ctx context.Context, caller, strategyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.newRecord(types.OpRescue, caller)
	err := s.rescue(caller, strategyID, &record)
	s.finishRecord(&record, err)
	metrics.ObserveOperation(types.OpRescue, err)
	s.publishFundMetrics()
	return err
}

func (s *Service) rescue(caller, strategyID string, record *types.OperationRecord) error {
	if !s.auth.CanManage(caller) {
		return fmt.Errorf("%w: %s", types.ErrUnauthorized, caller)
	}

	asset, _, _, err := s.registry.FindStrategy(strategyID)
	if err != nil {
		return err
	}
	adapter, err := s.registry.Adapter(strategyID)
	if err != nil {
		return err
	}

	balance, err := adapter.Balance(s.vaultAddr)
	if err != nil {
		return fmt.Errorf("strategy %s balance query: %w", strategyID, err)
	}

	receipt := types.StepReceipt{
		StepIndex:  len(record.Steps),
		Kind:       string(types.InstructionWithdraw),
		Asset:      asset.Denom,
		StrategyID: strategyID,
		Requested:  balance,
		Actual:     sdkmath.ZeroInt(),
		Timestamp:  s.now(),
	}

	if balance.IsPositive() {
		if err := adapter.Withdraw(balance, s.vaultAddr); err != nil {
			receipt.Message = err.Error()
			record.Steps = append(record.Steps, receipt)
			return fmt.Errorf("%w: rescue of %s: %v", types.ErrStrategyWithdraw, strategyID, err)
		}
		receipt.Actual = balance
	}
	receipt.Success = true
	record.Steps = append(record.Steps, receipt)

	if _, err := s.registry.SetPaused(strategyID, true); err != nil {
		return err
	}
	if s.regStore != nil {
		if err := s.regStore.SetStrategyPaused(strategyID, true); err != nil {
			s.log.Error().Err(err).Str("strategy", strategyID).Msg("Failed to persist paused flag")
		}
	}

	s.log.Warn().Str("strategy", strategyID).Str("rescued", balance.String()).Msg("Strategy rescued and paused")
	return nil
}

func (s *Service) opLogger(kind string) zerolog.Logger {
	return s.log.With().Str("operation_id", uuid.New().String()).Str("op", kind).Logger()
}

func (s *Service) newRecord(kind, caller string) types.OperationRecord {
	return types.OperationRecord{
		OperationID: uuid.New().String(),
		Kind:        kind,
		Caller:      caller,
		SharesDelta: sdkmath.ZeroInt(),
		Timestamp:   s.now(),
	}
}

func (s *Service) finishRecord(record *types.OperationRecord, err error) {
	record.Success = err == nil
	if err != nil {
		record.Error = err.Error()
	}
	if s.records == nil {
		return
	}
	if _, saveErr := s.records.SaveOperationRecord(*record); saveErr != nil {
		s.log.Error().Err(saveErr).Str("operation_id", record.OperationID).Msg("Failed to save operation record")
	}
}

// publishFundMetrics refreshes the managed-funds gauges. Failures are logged
// and ignored; metrics must never fail an operation.
func (s *Service) publishFundMetrics() {
	funds, err := s.ledger.TotalManagedFunds()
	if err != nil {
		s.log.Debug().Err(err).Msg("Skipping fund metrics refresh")
		return
	}
	metrics.PublishFunds(funds, s.bank.Supply(s.shareDenom))
}
