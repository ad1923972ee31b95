/*

This file defines the Strategy collaborator interface for yield sources and a
simulated implementation that backs local mode and the test suite. A strategy
is polymorphic over exactly one underlying asset; the registry checks at
initialization that the declared asset matches the asset the strategy is
registered under.

*/

package strategy

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/meridian-fi/mvm/internal/token"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("strategy balance is insufficient")
	ErrUnknownHolder       = errors.New("holder has no balance in strategy")
)

// Strategy is the external yield-source adapter for one underlying asset.
type Strategy interface {
	// ID returns the registry identifier of this strategy.
	ID() string
	// Asset returns the underlying asset denom this strategy accepts.
	Asset() string
	// Balance returns the holder's current balance deployed in the strategy,
	// including accrued yield.
	Balance(holder string) (sdkmath.Int, error)
	// Deposit moves amount of the underlying asset from the holder into the strategy.
	Deposit(amount sdkmath.Int, holder string) error
	// Withdraw moves amount of the underlying asset from the strategy back to the holder.
	Withdraw(amount sdkmath.Int, holder string) error
	// Harvest realizes pending yield for the holder and returns the amount credited.
	Harvest(holder string) (sdkmath.Int, error)
}

// Simulated is an in-process Strategy that holds deposits in a bank account of
// its own and accrues yield on Harvest at a fixed rate per call.
type Simulated struct {
	mu sync.Mutex

	id           string
	asset        string
	account      string
	bank         token.Bank
	yieldRateBps uint64

	balances map[string]sdkmath.Int
}

// NewSimulated creates a simulated strategy. yieldRateBps is the yield, in
// basis points of the deployed balance, credited on each Harvest call.
func NewSimulated(id, asset string, bank token.Bank, yieldRateBps uint64) *Simulated {
	return &Simulated{
		id:           id,
		asset:        asset,
		account:      "strategy/" + id,
		bank:         bank,
		yieldRateBps: yieldRateBps,
		balances:     make(map[string]sdkmath.Int),
	}
}

func (s *Simulated) ID() string    { return s.id }
func (s *Simulated) Asset() string { return s.asset }

func (s *Simulated) Balance(holder string) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bal, ok := s.balances[holder]; ok {
		return bal, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (s *Simulated) Deposit(amount sdkmath.Int, holder string) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if err := s.bank.Send(s.asset, holder, s.account, amount); err != nil {
		return fmt.Errorf("strategy %s deposit: %w", s.id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[holder]
	if !ok {
		bal = sdkmath.ZeroInt()
	}
	s.balances[holder] = bal.Add(amount)
	return nil
}

func (s *Simulated) Withdraw(amount sdkmath.Int, holder string) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	bal, ok := s.balances[holder]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHolder, holder)
	}
	if bal.LT(amount) {
		s.mu.Unlock()
		return fmt.Errorf("%w: has %s, requested %s", ErrInsufficientBalance, bal, amount)
	}
	s.balances[holder] = bal.Sub(amount)
	s.mu.Unlock()

	if err := s.bank.Send(s.asset, s.account, holder, amount); err != nil {
		// Restore book balance; the bank transfer did not happen.
		s.mu.Lock()
		s.balances[holder] = s.balances[holder].Add(amount)
		s.mu.Unlock()
		return fmt.Errorf("strategy %s withdraw: %w", s.id, err)
	}
	return nil
}

func (s *Simulated) Harvest(holder string) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[holder]
	if !ok || bal.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	yield := bal.Mul(sdkmath.NewIntFromUint64(s.yieldRateBps)).Quo(sdkmath.NewInt(10_000))
	if yield.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	if err := s.bank.Mint(s.asset, s.account, yield); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("strategy %s harvest: %w", s.id, err)
	}
	s.balances[holder] = bal.Add(yield)
	return yield, nil
}
