package service

import "custodial-wallet/pkg/apperror"

// AmountLimits bounds a single deposit or transfer, in kobo.
type AmountLimits struct {
	Min int64
	Max int64
}

// Check rejects non-positive and out-of-range amounts.
func (l AmountLimits) Check(amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if amount < l.Min || amount > l.Max {
		return apperror.ErrAmountOutOfRange(l.Min, l.Max)
	}
	return nil
}
