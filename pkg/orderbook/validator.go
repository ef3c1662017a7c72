package orderbook

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// Validator is a pure predicate over incoming order requests for one asset
// pair. It never mutates the book; a rejection is reported to the caller as
// a ValidationFailed event and processing of that request stops there.
type Validator struct {
	baseAsset  string
	quoteAsset string
}

// NewValidator builds a validator scoped to one base/quote pair.
func NewValidator(baseAsset, quoteAsset string) *Validator {
	return &Validator{baseAsset: baseAsset, quoteAsset: quoteAsset}
}

// ValidateLimit rejects an incoming limit order request.
func (v *Validator) ValidateLimit(baseAsset, quoteAsset string, price float64, qty *uint256.Int) error {
	if err := v.validatePair(baseAsset, quoteAsset); err != nil {
		return err
	}
	if err := validateQty(qty); err != nil {
		return err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("price must be a finite positive number, got %v", price)
	}
	return nil
}

// ValidateMarket rejects an incoming market order request (no price to check).
func (v *Validator) ValidateMarket(baseAsset, quoteAsset string, qty *uint256.Int) error {
	if err := v.validatePair(baseAsset, quoteAsset); err != nil {
		return err
	}
	return validateQty(qty)
}

func (v *Validator) validatePair(baseAsset, quoteAsset string) error {
	if baseAsset != v.baseAsset || quoteAsset != v.quoteAsset {
		return fmt.Errorf("asset pair mismatch: book is %s/%s, request is %s/%s",
			v.baseAsset, v.quoteAsset, baseAsset, quoteAsset)
	}
	return nil
}

func validateQty(qty *uint256.Int) error {
	if qty == nil || qty.IsZero() {
		return fmt.Errorf("quantity must be positive")
	}
	return nil
}
