// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFormatHandle(t *testing.T) {
	out, err := run(t, "format-handle", "255")
	require.NoError(t, err)
	require.Equal(t, "0x"+strings.Repeat("0", 62)+"ff\n", out)
}

func TestParseHandle(t *testing.T) {
	out, err := run(t, "parse-handle", "0xff")
	require.NoError(t, err)
	require.Contains(t, out, "Decimal:   255")
	require.Contains(t, out, "Encrypted: false")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "--address", "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.Contains(t, out, "valid")

	_, err = run(t, "validate", "--address", "0x11", "--signature", "")
	require.ErrorIs(t, err, errInvalidInput)
}

func TestDemo(t *testing.T) {
	out, err := run(t, "demo", "--value", "1234")
	require.NoError(t, err)
	require.Contains(t, out, "Decrypted: 1234")
	require.Contains(t, out, "Revoked 1 permit(s)")
}
