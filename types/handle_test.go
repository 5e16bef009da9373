// Copyright (C) 2025, Lux Industries, Inc.

package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestHandleFormat(t *testing.T) {
	require := require.New(t)

	require.Equal(
		"0x0000000000000000000000000000000000000000000000000000000000000000",
		FormatHandle(uint256.NewInt(0)),
	)
	require.Equal(
		"0x00000000000000000000000000000000000000000000000000000000000000ff",
		FormatHandle(uint256.NewInt(255)),
	)
	require.Equal(
		"0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		FormatHandle(new(uint256.Int).SetAllOne()),
	)
}

func TestHandleRoundTrip(t *testing.T) {
	values := []*uint256.Int{
		uint256.NewInt(0),
		uint256.NewInt(1),
		uint256.NewInt(1 << 63),
		new(uint256.Int).Lsh(uint256.NewInt(1), 64),
		new(uint256.Int).Lsh(uint256.NewInt(0xdeadbeef), 200),
		new(uint256.Int).SetAllOne(),
	}
	for _, v := range values {
		t.Run(v.Hex(), func(t *testing.T) {
			h, err := ParseHandle(FormatHandle(v))
			require.NoError(t, err)
			require.Equal(t, v, h.Int())
		})
	}
}

func TestParseHandle(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr error
	}{
		{name: "short hex", input: "0xff", want: 255},
		{name: "upper prefix", input: "0XFF", want: 255},
		{name: "decimal", input: "1234", want: 1234},
		{name: "surrounding space", input: "  42 ", want: 42},
		{name: "empty", input: "", wantErr: ErrInvalidHandle},
		{name: "bare prefix", input: "0x", wantErr: ErrInvalidHandle},
		{name: "not hex", input: "0xzz", wantErr: ErrInvalidHandle},
		{name: "not decimal", input: "12ab", wantErr: ErrInvalidHandle},
		{name: "too long", input: "0x1" + strings.Repeat("0", 64), wantErr: ErrHandleOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHandle(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, uint256.NewInt(tt.want), h.Int())
		})
	}
}

func TestHandleIsEncrypted(t *testing.T) {
	require := require.New(t)

	require.False(HandleFromUint64(0).IsEncrypted())
	require.False(HandleFromUint64(^uint64(0)).IsEncrypted())
	require.True(HandleFromUint256(new(uint256.Int).Lsh(uint256.NewInt(1), 64)).IsEncrypted())
}

func TestHandleJSON(t *testing.T) {
	require := require.New(t)

	h := HandleFromUint256(new(uint256.Int).Lsh(uint256.NewInt(7), 100))
	b, err := json.Marshal(h)
	require.NoError(err)
	require.Equal(`"`+h.String()+`"`, string(b))

	var decoded Handle
	require.NoError(json.Unmarshal(b, &decoded))
	require.Equal(h, decoded)
}

func TestFheTypeRange(t *testing.T) {
	tests := []struct {
		typ   FheType
		value *uint256.Int
		ok    bool
	}{
		{Bool, uint256.NewInt(1), true},
		{Bool, uint256.NewInt(2), false},
		{Uint8, uint256.NewInt(255), true},
		{Uint8, uint256.NewInt(256), false},
		{Uint16, uint256.NewInt(65535), true},
		{Uint32, uint256.NewInt(1 << 32), false},
		{Uint64, uint256.NewInt(^uint64(0)), true},
		{Uint128, new(uint256.Int).Lsh(uint256.NewInt(1), 128), false},
		{Address, new(uint256.Int).Lsh(uint256.NewInt(1), 159), true},
		{Address, new(uint256.Int).Lsh(uint256.NewInt(1), 160), false},
		{Uint256, new(uint256.Int).SetAllOne(), true},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.value.Dec(), func(t *testing.T) {
			err := tt.typ.CheckRange(tt.value)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrValueOutOfRange)
			}
		})
	}
}

func TestParseFheType(t *testing.T) {
	require := require.New(t)

	for _, typ := range AllTypes() {
		parsed, err := ParseFheType(typ.String())
		require.NoError(err)
		require.Equal(typ, parsed)
	}

	parsed, err := ParseFheType(" UINT32 ")
	require.NoError(err)
	require.Equal(Uint32, parsed)

	_, err = ParseFheType("uint512")
	require.ErrorIs(err, ErrUnknownType)

	_, err = TypeForBits(12)
	require.ErrorIs(err, ErrUnknownType)
}
