// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/fhevm/engine"
	"github.com/luxfi/fhevm/types"
	"github.com/luxfi/fhevm/utils"
)

var (
	ErrInvalidAddress         = errors.New("invalid address")
	ErrInvalidSignatureFormat = errors.New("invalid signature format")

	ErrHandleNotFound         = errors.New("handle not found")
	ErrHandleNotConfirmed     = errors.New("handle not confirmed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrHandleCollision        = errors.New("handle collision")
	ErrInvalidCiphertext      = errors.New("invalid ciphertext")
	ErrWeakEntropy            = errors.New("entropy source produced no usable handle")

	ErrUnauthorized = errors.New("unauthorized")
	ErrExpiredGrant = errors.New("expired grant")

	ErrCancelled = errors.New("cancelled")
)

// ErrorKind groups errors by how a caller is expected to react to them.
type ErrorKind int32

const (
	KindNone ErrorKind = iota
	// KindValidation covers malformed input. Never retried.
	KindValidation
	// KindRegistry covers handle lifecycle violations. Never retried.
	KindRegistry
	// KindPermission means the caller should re-authorize rather than retry.
	KindPermission
	// KindNetwork means the engine stayed unavailable through every attempt.
	KindNetwork
	// KindCancelled means the caller gave up on the request.
	KindCancelled
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindRegistry:
		return "registry"
	case KindPermission:
		return "permission"
	case KindNetwork:
		return "network"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error is a classified failure carried out of a DecryptionResult.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("fhevm %s error: %s", e.Kind, e.Message)
}

// Classify maps err onto the error taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrInvalidSignatureFormat),
		errors.Is(err, ErrInvalidCiphertext),
		errors.Is(err, types.ErrValueOutOfRange),
		errors.Is(err, types.ErrUnknownType),
		errors.Is(err, types.ErrInvalidHandle),
		errors.Is(err, engine.ErrBadRequest):
		return KindValidation
	case errors.Is(err, ErrHandleNotFound),
		errors.Is(err, ErrHandleNotConfirmed),
		errors.Is(err, ErrInvalidStateTransition):
		return KindRegistry
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrExpiredGrant):
		return KindPermission
	case errors.Is(err, utils.ErrRetryExhausted),
		errors.Is(err, engine.ErrEngineUnavailable):
		return KindNetwork
	default:
		return KindInternal
	}
}

// IsRetryable is the classifier the pipeline hands to the retry coordinator:
// only failures of the engine's transport are worth another attempt.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindValidation, KindRegistry, KindPermission, KindCancelled:
		return false
	default:
		return !errors.Is(err, engine.ErrInvalidKMSSignature)
	}
}
