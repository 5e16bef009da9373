// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signer produces and checks the typed-data permits a user signs to let a
// contract decrypt values on their behalf.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/math"
	"github.com/luxfi/geth/signer/core/apitypes"
)

// SignatureLen is the length of an r || s || v signature.
const SignatureLen = crypto.SignatureLength

// recoveryOffset is added to the recovery id in the last signature byte.
const recoveryOffset = 27

const permitPrimaryType = "UserDecrypt"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signature does not match user")
)

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	permitPrimaryType: {
		{Name: "user", Type: "address"},
	},
}

// Domain separates permits of different deployments.
type Domain struct {
	Name    string
	Version string
	ChainID uint64
}

// DefaultDomain returns the domain used when none is configured.
func DefaultDomain(chainID uint64) Domain {
	return Domain{Name: "Authorization token", Version: "1", ChainID: chainID}
}

// Permit authorizes Contract to have the user's values decrypted for them.
type Permit struct {
	Domain   Domain
	User     common.Address
	Contract common.Address
}

// TypedData returns the permit as an EIP-712 message with Contract as the
// verifying contract.
func (p *Permit) TypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: permitPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              p.Domain.Name,
			Version:           p.Domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.Domain.ChainID)),
			VerifyingContract: p.Contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"user": p.User.Hex(),
		},
	}
}

// Digest returns keccak256(0x19 0x01 || domainSeparator || structHash).
func (p *Permit) Digest() (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(p.TypedData())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash permit: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// Signer signs permits on behalf of one account.
type Signer interface {
	// Address returns the account whose permits this signer produces
	Address() common.Address

	// SignPermit returns a 65-byte r || s || v signature over the permit digest
	SignPermit(permit *Permit) ([]byte, error)
}

var _ Signer = (*LocalSigner)(nil)

// LocalSigner signs with an in-memory secp256k1 key.
type LocalSigner struct {
	sk      *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner creates a new local signer
func NewLocalSigner(sk *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		sk:      sk,
		address: common.PubkeyToAddress(sk.PublicKey),
	}
}

// GenerateLocalSigner creates a signer with a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	sk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewLocalSigner(sk), nil
}

// LocalSignerFromBytes loads a 32-byte private key.
func LocalSignerFromBytes(b []byte) (*LocalSigner, error) {
	sk, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewLocalSigner(sk), nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignPermit signs the permit digest. The permit's user must be this signer.
func (s *LocalSigner) SignPermit(permit *Permit) ([]byte, error) {
	if permit.User != s.address {
		return nil, fmt.Errorf("%w: signer %s, permit user %s", ErrSignerMismatch, s.address, permit.User)
	}
	digest, err := permit.Digest()
	if err != nil {
		return nil, err
	}
	return s.SignHash(digest)
}

// SignHash signs a 32-byte digest. The last byte of the result is 27 or 28.
func (s *LocalSigner) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), s.sk)
	if err != nil {
		return nil, err
	}
	sig[SignatureLen-1] += recoveryOffset
	return sig, nil
}

// RecoverAddress returns the account that produced sig over hash. The
// recovery byte may be 0, 1, 27 or 28.
func RecoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLen {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLen, len(sig))
	}
	v := sig[SignatureLen-1]
	if v >= recoveryOffset {
		v -= recoveryOffset
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[SignatureLen-1])
	}

	normalized := make([]byte, SignatureLen)
	copy(normalized, sig)
	normalized[SignatureLen-1] = v

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return common.PubkeyToAddress(*pub), nil
}

// VerifyPermit checks that sig over permit was produced by permit.User.
func VerifyPermit(permit *Permit, sig []byte) error {
	digest, err := permit.Digest()
	if err != nil {
		return err
	}
	recovered, err := RecoverAddress(digest, sig)
	if err != nil {
		return err
	}
	if recovered != permit.User {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrSignerMismatch, recovered, permit.User)
	}
	return nil
}
