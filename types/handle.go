// Copyright (C) 2025, Lux Industries, Inc.

package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// HandleLen is the byte length of a handle.
const HandleLen = 32

// plaintextBoundary is the number of low-order bytes a plaintext uint64 can occupy.
// A handle with any byte set above it is at least 2^64.
const plaintextBoundary = HandleLen - 8

// Handle is an opaque 256-bit reference to a ciphertext, stored big-endian.
type Handle [HandleLen]byte

// EmptyHandle is the zero handle.
var EmptyHandle = Handle{}

// HandleFromUint256 converts v to a handle.
func HandleFromUint256(v *uint256.Int) Handle {
	return Handle(v.Bytes32())
}

// HandleFromUint64 converts v to a handle. Such handles are never issued by a
// registry because they collide with the plaintext range.
func HandleFromUint64(v uint64) Handle {
	return HandleFromUint256(uint256.NewInt(v))
}

// Int returns the handle as an unsigned integer.
func (h Handle) Int() *uint256.Int {
	return new(uint256.Int).SetBytes32(h[:])
}

// Bytes returns a copy of the big-endian handle bytes.
func (h Handle) Bytes() []byte {
	b := make([]byte, HandleLen)
	copy(b, h[:])
	return b
}

// String renders the handle as 0x followed by 64 zero-padded hex digits.
func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool {
	return h == EmptyHandle
}

// IsEncrypted reports whether h lies above the uint64 range, which is how
// handles are told apart from plaintext numbers passed through the same channel.
func (h Handle) IsEncrypted() bool {
	for _, b := range h[:plaintextBoundary] {
		if b != 0 {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// FormatHandle renders v in handle display form.
func FormatHandle(v *uint256.Int) string {
	return HandleFromUint256(v).String()
}

// ParseHandle parses a handle from its display form, any 0x-prefixed hex string of
// at most 64 digits, or a decimal string.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Handle{}, fmt.Errorf("%w: empty string", ErrInvalidHandle)
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if len(digits) == 0 {
			return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
		}
		if len(digits) > 2*HandleLen {
			return Handle{}, fmt.Errorf("%w: %q", ErrHandleOutOfRange, s)
		}
		padded := strings.Repeat("0", 2*HandleLen-len(digits)) + digits
		b, err := hex.DecodeString(padded)
		if err != nil {
			return Handle{}, fmt.Errorf("%w: %q: %v", ErrInvalidHandle, s, err)
		}
		var h Handle
		copy(h[:], b)
		return h, nil
	}

	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %q: %v", ErrInvalidHandle, s, err)
	}
	return HandleFromUint256(v), nil
}
