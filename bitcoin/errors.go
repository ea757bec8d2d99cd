// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"fmt"
)

var (
	// ErrConstruction defines errors class for malformed builder parameters.
	// Raised before any script compiles, never retried.
	ErrConstruction = errors.New("transaction construction")
	// ErrScriptIntegrity defines errors class for compiled scripts that fail
	// the decompile self-check. Signals a compiler defect.
	ErrScriptIntegrity = errors.New("script integrity")
	// ErrSignature defines errors class for inputs the signer could not
	// produce a valid signature for.
	ErrSignature = errors.New("input signing")
	// ErrFinalization defines errors class for inputs below signature
	// threshold at finalization time.
	ErrFinalization = errors.New("input finalization")

	// ErrInsufficientNativeBalance defines that there is not enough bitcoin
	// in provided utxos to cover outputs and fees.
	ErrInsufficientNativeBalance = NewConstructionError("insufficient bitcoin balance")
	// ErrInvalidUTXOAmount defines that provided utxos list can not satisfy
	// requested selection size.
	ErrInvalidUTXOAmount = NewConstructionError("utxos amount is not enough for selection")
)

// NewConstructionError returns formatted error joined with ErrConstruction class.
func NewConstructionError(format string, args ...any) error {
	return errors.Join(ErrConstruction, fmt.Errorf(format, args...))
}

// NewScriptIntegrityError returns formatted error joined with ErrScriptIntegrity class.
func NewScriptIntegrityError(format string, args ...any) error {
	return errors.Join(ErrScriptIntegrity, fmt.Errorf(format, args...))
}

// NewSignatureError returns formatted error joined with ErrSignature class.
func NewSignatureError(format string, args ...any) error {
	return errors.Join(ErrSignature, fmt.Errorf(format, args...))
}

// NewFinalizationError returns formatted error joined with ErrFinalization class.
func NewFinalizationError(format string, args ...any) error {
	return errors.Join(ErrFinalization, fmt.Errorf(format, args...))
}
