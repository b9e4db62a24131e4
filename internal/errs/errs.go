// Package errs holds the sentinel errors shared by the compensation services.
package errs

import (
	"errors"
)

var (
	ErrNotFound                   = errors.New("not_found")
	ErrAlreadyOwned               = errors.New("already_owned")
	ErrInsufficientFunds          = errors.New("insufficient_funds")
	ErrDuplicateExternalReference = errors.New("duplicate_external_reference")
	ErrVerificationFailed         = errors.New("verification_failed")
	ErrInvalidAmount              = errors.New("invalid_amount")

	ErrInvalidRequest  = errors.New("invalid_request")
	ErrInvalidTier     = errors.New("invalid_tier")
	ErrInactiveMember  = errors.New("inactive_member")
	ErrAlreadyActive   = errors.New("already_active")
	ErrSelfTransfer    = errors.New("self_transfer")
	ErrSponsorCycle    = errors.New("sponsor_cycle")
	ErrSponsorAssigned = errors.New("sponsor_already_assigned")
	ErrMissingWallet   = errors.New("missing_wallet_address")
	ErrHandleTaken     = errors.New("handle_taken")
	ErrRateLimited     = errors.New("rate_limited")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "NotFound"},
	{ErrAlreadyOwned, "AlreadyOwned"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrDuplicateExternalReference, "DuplicateExternalReference"},
	{ErrVerificationFailed, "VerificationFailed"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidRequest, "InvalidRequest"},
	{ErrInvalidTier, "InvalidTier"},
	{ErrInactiveMember, "InactiveMember"},
	{ErrAlreadyActive, "AlreadyActive"},
	{ErrSelfTransfer, "SelfTransfer"},
	{ErrSponsorCycle, "SponsorCycle"},
	{ErrSponsorAssigned, "SponsorAlreadyAssigned"},
	{ErrMissingWallet, "MissingWalletAddress"},
	{ErrHandleTaken, "HandleTaken"},
	{ErrRateLimited, "RateLimited"},
}

// Code maps err to the stable taxonomy name handed to callers.
// Errors outside the taxonomy map to "Internal".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

// IsValidation reports whether err was raised before any write happened.
func IsValidation(err error) bool {
	return Code(err) != "Internal"
}
