// Copyright (C) 2025, Lux Industries, Inc.

// Package types defines the value types shared by the lifecycle manager and the
// engine boundary: encrypted handles and the plaintext types they can carry.
package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrUnknownType      = errors.New("unknown fhe type")
	ErrValueOutOfRange  = errors.New("value out of range")
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrHandleOutOfRange = errors.New("handle exceeds 256 bits")
)

// FheType is the declared plaintext type behind a ciphertext.
type FheType uint8

const (
	Bool FheType = iota
	Uint8
	Uint16
	Uint32
	Uint64
	Uint128
	Uint256
	Address
)

var typeNames = [...]string{
	Bool:    "bool",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Uint128: "uint128",
	Uint256: "uint256",
	Address: "address",
}

// AllTypes lists every supported type in declaration order.
func AllTypes() []FheType {
	return []FheType{Bool, Uint8, Uint16, Uint32, Uint64, Uint128, Uint256, Address}
}

func (t FheType) Valid() bool {
	return int(t) < len(typeNames)
}

func (t FheType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
	return typeNames[t]
}

// Bits returns the plaintext width in bits.
func (t FheType) Bits() int {
	switch t {
	case Bool:
		return 1
	case Uint8:
		return 8
	case Uint16:
		return 16
	case Uint32:
		return 32
	case Uint64:
		return 64
	case Uint128:
		return 128
	case Uint256:
		return 256
	case Address:
		return 160
	default:
		return 0
	}
}

// MaxValue returns the largest plaintext representable by t.
func (t FheType) MaxValue() *uint256.Int {
	bits := t.Bits()
	if bits == 0 {
		return new(uint256.Int)
	}
	if bits == 256 {
		return new(uint256.Int).SetAllOne()
	}
	max := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bits))
	return max.SubUint64(max, 1)
}

// CheckRange verifies that v fits in t.
func (t FheType) CheckRange(v *uint256.Int) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrValueOutOfRange)
	}
	if v.Gt(t.MaxValue()) {
		return fmt.Errorf("%w: %s exceeds maximum for %s (%s)", ErrValueOutOfRange, v.Dec(), t, t.MaxValue().Dec())
	}
	return nil
}

// ParseFheType accepts the canonical names ("uint8", "bool", ...) case-insensitively.
func ParseFheType(s string) (FheType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == name {
			return FheType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// TypeForBits maps an integer width (8, 16, 32, 64, 128, 256) to its type.
func TypeForBits(bits int) (FheType, error) {
	switch bits {
	case 8:
		return Uint8, nil
	case 16:
		return Uint16, nil
	case 32:
		return Uint32, nil
	case 64:
		return Uint64, nil
	case 128:
		return Uint128, nil
	case 256:
		return Uint256, nil
	default:
		return 0, fmt.Errorf("%w: unsupported bit size %d", ErrUnknownType, bits)
	}
}
