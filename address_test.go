// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{address: testContract, valid: true},
		{address: "0xAbCdEf0123456789abcdef0123456789ABCDEF01", valid: true},
		{address: "0x" + strings.Repeat("1", 39), valid: false},
		{address: "0x" + strings.Repeat("1", 41), valid: false},
		{address: strings.Repeat("1", 42), valid: false},
		{address: "0x" + strings.Repeat("g", 40), valid: false},
		{address: "", valid: false},
	}
	for _, test := range tests {
		require.Equal(t, test.valid, IsValidAddress(test.address), test.address)
	}
}

func TestParseSignature(t *testing.T) {
	require := require.New(t)

	hex := "0x" + strings.Repeat("ab", SignatureLen)
	require.True(IsValidSignature(hex))
	sig, err := ParseSignature(hex)
	require.NoError(err)
	require.Len(sig, SignatureLen)
	require.Equal(hex, FormatSignature(sig))

	_, err = ParseSignature(hex[:len(hex)-2])
	require.ErrorIs(err, ErrInvalidSignatureFormat)
}

func TestTruncateAddress(t *testing.T) {
	require := require.New(t)

	require.Equal("0x1111...1111", TruncateAddress(testContract, 4))
	require.Equal("0x12", TruncateAddress("0x12", 4))
	require.Equal(testContract, TruncateAddress(testContract, 20))
}
