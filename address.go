// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"fmt"
	"regexp"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
)

// SignatureLen is the length of a secp256k1 signature in r || s || v form.
const SignatureLen = 65

var (
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	signaturePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)
)

// IsValidAddress reports whether s is 0x followed by exactly 40 hex characters.
// Mixed case is accepted without checksum validation.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// IsValidSignature reports whether s is 0x followed by exactly 130 hex characters.
func IsValidSignature(s string) bool {
	return signaturePattern.MatchString(s)
}

// ParseAddress validates s and converts it to an address.
func ParseAddress(s string) (common.Address, error) {
	if !IsValidAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseSignature validates and decodes a hex signature.
func ParseSignature(s string) ([]byte, error) {
	if !IsValidSignature(s) {
		return nil, fmt.Errorf("%w: expected 0x followed by %d hex characters", ErrInvalidSignatureFormat, 2*SignatureLen)
	}
	return hexutil.Decode(s)
}

// FormatSignature encodes a signature as 0x-prefixed hex.
func FormatSignature(sig []byte) string {
	return hexutil.Encode(sig)
}

func checkSignature(sig []byte) error {
	if len(sig) != SignatureLen {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignatureFormat, SignatureLen, len(sig))
	}
	return nil
}

// TruncateAddress shortens a valid address for display, keeping chars hex digits
// on each side. Invalid input is returned unchanged.
func TruncateAddress(s string, chars int) string {
	if !IsValidAddress(s) || chars <= 0 || 2*chars >= 40 {
		return s
	}
	return s[:chars+2] + "..." + s[42-chars:]
}
