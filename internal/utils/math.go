/*

This file contains checked fixed-point helpers shared by the deposit solver,
the withdrawal engine and the allocators. All ratio computations in the engine
go through MulDiv so that overflow and division by zero surface as
types.ErrArithmetic instead of a panic or a silently wrapped value.

*/

package utils

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/meridian-fi/mvm/internal/types"
)

// MulDiv computes floor(a * b / den) with 256-bit intermediate precision.
// sdkmath.Int panics once a value leaves the 256-bit range, so the operation
// runs under a recover and reports types.ErrArithmetic instead.
func MulDiv(a, b, den sdkmath.Int) (result sdkmath.Int, err error) {
	if a.IsNil() || b.IsNil() || den.IsNil() {
		return sdkmath.Int{}, fmt.Errorf("%w: nil operand", types.ErrArithmetic)
	}
	if den.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: division by zero", types.ErrArithmetic)
	}
	defer func() {
		if r := recover(); r != nil {
			result = sdkmath.Int{}
			err = fmt.Errorf("%w: %v", types.ErrArithmetic, r)
		}
	}()
	result = a.Mul(b).Quo(den)
	return result, nil
}

// CheckedAdd returns a + b, mapping overflow to types.ErrArithmetic.
func CheckedAdd(a, b sdkmath.Int) (result sdkmath.Int, err error) {
	if a.IsNil() || b.IsNil() {
		return sdkmath.Int{}, fmt.Errorf("%w: nil operand", types.ErrArithmetic)
	}
	defer func() {
		if r := recover(); r != nil {
			result = sdkmath.Int{}
			err = fmt.Errorf("%w: %v", types.ErrArithmetic, r)
		}
	}()
	result = a.Add(b)
	return result, nil
}

// SumInts adds a slice of amounts with overflow checking.
func SumInts(amounts []sdkmath.Int) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	var err error
	for _, a := range amounts {
		total, err = CheckedAdd(total, a)
		if err != nil {
			return sdkmath.Int{}, err
		}
	}
	return total, nil
}
