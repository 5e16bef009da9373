// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine is the boundary to the external FHE engine: the service that
// encrypts plaintexts, holds decryption keys and answers decryption requests.
// Nothing in this package performs homomorphic operations itself.
package engine

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm/types"
)

var (
	// ErrEngineUnavailable marks transient failures worth retrying
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrBadRequest marks requests the engine rejected as malformed
	ErrBadRequest = errors.New("engine rejected request")

	// ErrInvalidCiphertext is returned when ciphertext is malformed
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrUnknownHandle is returned for handles the engine holds no ciphertext for
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrInvalidKMSSignature is returned when a decryption response is not signed
	// by the configured key management service
	ErrInvalidKMSSignature = errors.New("invalid kms signature")
)

// Ciphertext is an encrypted value together with the proof of well-formedness
// the chain requires before accepting it.
type Ciphertext struct {
	Data       []byte
	InputProof []byte
	Type       types.FheType
}

// Engine encrypts values and resolves decryption requests.
type Engine interface {
	// Encrypt encrypts value as type t
	Encrypt(ctx context.Context, value *uint256.Int, t types.FheType) (*Ciphertext, error)

	// DecryptWithAuthorization decrypts handle for the holder of signature, a
	// permit signed for contract
	DecryptWithAuthorization(ctx context.Context, handle types.Handle, contract common.Address, signature []byte) (*uint256.Int, error)

	// PublicDecrypt decrypts a handle that contract has marked publicly decryptable
	PublicDecrypt(ctx context.Context, handle types.Handle, contract common.Address) (*uint256.Int, error)

	// GenerateAuthorizationSignature signs a decryption permit for contract
	GenerateAuthorizationSignature(ctx context.Context, contract common.Address) ([]byte, error)

	// GetPublicKey returns the network's FHE public key
	GetPublicKey(ctx context.Context) ([]byte, error)
}

// Publisher is implemented by engines that must be told which handle a
// ciphertext was bound to once its input has been accepted.
type Publisher interface {
	Publish(ctx context.Context, handle types.Handle, ct *Ciphertext) error
}
